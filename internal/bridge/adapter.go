package bridge

import (
	"context"

	"github.com/ivlev/scriptvideo/internal/service"
)

// serviceAdapter narrows *service.Service to job ids for the wire.
type serviceAdapter struct {
	*service.Service
}

// Adapt wraps a service for use with New.
func Adapt(svc *service.Service) Service {
	return serviceAdapter{svc}
}

func (a serviceAdapter) CreateVideo(ctx context.Context, req service.Request) (string, error) {
	h, err := a.Service.CreateVideo(ctx, req)
	if err != nil {
		return "", err
	}
	return h.ID, nil
}

func (a serviceAdapter) CreateFromFolder(ctx context.Context, req service.FolderRequest) (string, error) {
	h, err := a.Service.CreateFromFolder(ctx, req)
	if err != nil {
		return "", err
	}
	return h.ID, nil
}
