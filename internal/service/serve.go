package service

import (
	"context"
	"fmt"
)

type Op string

const (
	OpCreate       Op = "create"
	OpCreateFolder Op = "create_folder"
	OpCancel       Op = "cancel"
)

// Call is one request/response exchange in the message-passing form of the service.
type Call struct {
	Op     Op
	Create Request
	Folder FolderRequest
	JobID  string
	// Reply receives exactly one Reply; it should be buffered.
	Reply chan<- Reply
}

type Reply struct {
	JobID string
	Err   error
}

// Serve handles calls until ctx is done or calls is closed.
func (s *Service) Serve(ctx context.Context, calls <-chan Call) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case call, ok := <-calls:
			if !ok {
				return nil
			}
			reply := s.dispatch(ctx, call)
			if call.Reply == nil {
				continue
			}
			select {
			case call.Reply <- reply:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *Service) dispatch(ctx context.Context, call Call) Reply {
	switch call.Op {
	case OpCreate:
		h, err := s.CreateVideo(ctx, call.Create)
		if err != nil {
			return Reply{Err: err}
		}
		return Reply{JobID: h.ID}
	case OpCreateFolder:
		h, err := s.CreateFromFolder(ctx, call.Folder)
		if err != nil {
			return Reply{Err: err}
		}
		return Reply{JobID: h.ID}
	case OpCancel:
		return Reply{JobID: call.JobID, Err: s.Cancel(call.JobID)}
	default:
		return Reply{Err: fmt.Errorf("unknown operation %q", call.Op)}
	}
}
