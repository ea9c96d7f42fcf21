package cmd

import (
	"context"

	"github.com/JakeFAU/techscan/internal/app"
	"github.com/JakeFAU/techscan/internal/dispatcher"
)

// Outcome is the result of a completed scan.
type Outcome = dispatcher.Outcome

type appService struct {
	*app.App
}

func (s appService) Close(ctx context.Context) error {
	err := s.App.Close(ctx)
	_ = s.Logger().Sync()
	return err
}
