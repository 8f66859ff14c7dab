package sonic

import "testing"

func TestValidateCommandEnvelope(t *testing.T) {
	cmd, err := NewCommand(CmdQueueSeek, QueueSeekBody{Index: 2})
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	if err := ValidateCommandEnvelope(cmd); err == nil {
		t.Fatalf("expected missing id error")
	}

	cmd.ID = "id"
	cmd.TS = 1
	cmd.From = "tester"
	if err := ValidateCommandEnvelope(cmd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewCommandNilBody(t *testing.T) {
	cmd, err := NewCommand(CmdPlaybackPlay, nil)
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	if string(cmd.Body) != "{}" {
		t.Fatalf("expected empty object body, got %s", cmd.Body)
	}
}

func TestCommandMutates(t *testing.T) {
	if CommandMutates(CmdQueueGet) {
		t.Fatalf("queue.get should not mutate")
	}
	if !CommandMutates(CmdQueueSet) || !CommandMutates(CmdServerUse) {
		t.Fatalf("expected mutating commands")
	}
}

func TestTopics(t *testing.T) {
	if got := TopicCommands(BaseTopic, "sonic:player:den"); got != "sonic/v1/node/sonic:player:den/cmd" {
		t.Fatalf("unexpected topic %s", got)
	}
	if got := TopicReply(BaseTopic, "c1"); got != "sonic/v1/reply/c1" {
		t.Fatalf("unexpected topic %s", got)
	}
}
