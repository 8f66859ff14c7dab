package sonic

// QueueGetBody fetches queue entries.
type QueueGetBody struct {
	From  int `json:"from"`
	Count int `json:"count"`
}

// QueueGetReply is the reply body for queue.get.
type QueueGetReply struct {
	Revision     int64       `json:"revision"`
	Index        int         `json:"index"`
	Status       string      `json:"status"`
	FailedItemID string      `json:"failedItemId,omitempty"`
	Length       int         `json:"length"`
	Items        []QueueItem `json:"items"`
}

// QueueItem is a queued song as seen by controllers. Stream URLs embed
// credentials and are never sent.
type QueueItem struct {
	MediaID    string  `json:"mediaId"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist,omitempty"`
	AlbumID    string  `json:"albumId,omitempty"`
	DurationMS int64   `json:"durationMs"`
	Rating     float64 `json:"rating,omitempty"`
	Rated      bool    `json:"rated"`
	Liked      bool    `json:"liked"`
}

// SongSource names songs to queue: explicit ids, or the contents of an album
// or playlist. Exactly one source must be set.
type SongSource struct {
	SongIDs    []string `json:"songIds,omitempty"`
	AlbumID    string   `json:"albumId,omitempty"`
	PlaylistID string   `json:"playlistId,omitempty"`
}

// QueueSetBody replaces the queue.
type QueueSetBody struct {
	SongSource
	StartIndex int  `json:"startIndex"`
	Play       bool `json:"play,omitempty"`
}

// QueueInsertBody inserts songs before position At. A nil At appends.
type QueueInsertBody struct {
	SongSource
	At *int `json:"at,omitempty"`
}

// QueueRemoveBody removes the entry at Index.
type QueueRemoveBody struct {
	Index int `json:"index"`
}

// QueueMoveBody moves an entry.
type QueueMoveBody struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// QueueSeekBody jumps to an entry.
type QueueSeekBody struct {
	Index int `json:"index"`
}

// ServerUseBody switches the active server.
type ServerUseBody struct {
	ServerID string `json:"serverId"`
}

// ServerReply reports the active server binding.
type ServerReply struct {
	ServerID   string `json:"serverId"`
	Name       string `json:"name,omitempty"`
	Generation uint64 `json:"generation"`
}

// PlayerState is the retained state of a player node.
type PlayerState struct {
	Status       string     `json:"status"`
	Index        int        `json:"index"`
	Length       int        `json:"length"`
	Revision     int64      `json:"revision"`
	Current      *QueueItem `json:"current,omitempty"`
	FailedItemID string     `json:"failedItemId,omitempty"`
	Error        string     `json:"error,omitempty"`
	ServerID     string     `json:"serverId,omitempty"`
	Generation   uint64     `json:"generation"`
	TS           int64      `json:"ts"`
}

// SessionEvent is one mirrored session operation, published in the order
// the player applied it.
type SessionEvent struct {
	Seq      int64    `json:"seq"`
	Op       string   `json:"op"`
	Index    int      `json:"index"`
	To       int      `json:"to,omitempty"`
	MediaIDs []string `json:"mediaIds,omitempty"`
	TS       int64    `json:"ts"`
}
