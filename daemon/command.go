// Package daemon is the message-passing boundary to the process that fetches
// and parses board pages. Commands are one-way: nothing waits for a reply.
package daemon

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	CmdBuildPosts = "buildPosts"

	// TOPIC_DAEMON_COMMAND is the event bus topic commands are published on.
	TOPIC_DAEMON_COMMAND = "topic.daemon_command"

	fieldCmd = "cmd"
	fieldUrl = "url"
)

// Command is the {cmd, url} message understood by the daemon.
type Command struct {
	Cmd string
	URL string
}

// Commander delivers a Command to the daemon. A nil error means the command
// was handed off, not that the daemon finished it.
type Commander interface {
	Send(ctx context.Context, cmd Command) error
}

func BuildPostsCommand(url string) Command {
	return Command{Cmd: CmdBuildPosts, URL: url}
}

// Encode serializes the command as a protobuf Struct {cmd, url}.
func (c Command) Encode() ([]byte, error) {
	if c.Cmd == "" {
		return nil, errors.New("command name is required")
	}
	s, err := structpb.NewStruct(map[string]interface{}{
		fieldCmd: c.Cmd,
		fieldUrl: c.URL,
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

func DecodeCommand(data []byte) (Command, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return Command{}, errors.Wrap(err, "malformed daemon command")
	}
	cmd := Command{
		Cmd: s.GetFields()[fieldCmd].GetStringValue(),
		URL: s.GetFields()[fieldUrl].GetStringValue(),
	}
	if cmd.Cmd == "" {
		return Command{}, errors.New("daemon command without cmd field")
	}
	return cmd, nil
}
