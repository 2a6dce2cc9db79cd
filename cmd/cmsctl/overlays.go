package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/hanko-field/cms/internal/domain"
	"github.com/hanko-field/cms/internal/overlay"
	"github.com/hanko-field/cms/internal/services"
)

func newOverlaysCommand(withRuntime runtimeRunner) *cobra.Command {
	var (
		path, language, region string
		dismissed              []string
		modalDelay             time.Duration
	)
	cmd := &cobra.Command{
		Use:   "overlays",
		Short: "Show which banner and modal a page view would display",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(cmd *cobra.Command, _ []string, rt *runtime) error {
			selection, err := rt.overlays.Select(cmd.Context(), services.OverlaySelectionQuery{
				Path:      path,
				Language:  language,
				Region:    optional(region),
				Dismissed: overlay.NewDismissed(dismissed...),
			})
			if err != nil {
				return fmt.Errorf("select overlays: %w", err)
			}
			if selection.Banner == nil && selection.Modal == nil {
				fmt.Fprintln(out(cmd), "no overlay for this page view")
				return nil
			}

			delay := selection.ModalDelay
			if modalDelay > 0 {
				delay = modalDelay
			}

			var (
				mu      sync.Mutex
				started = time.Now()
				shown   = make(chan struct{}, 1)
			)
			scheduler := overlay.NewScheduler(delay, func(o domain.Overlay) {
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintf(out(cmd), "%-6s %s %q (after %s)\n", o.DisplayStyle, o.ID, o.Title, time.Since(started).Truncate(time.Millisecond))
				if o.DisplayStyle == domain.DisplayStyleModal {
					shown <- struct{}{}
				}
			})
			scheduler.Schedule(overlay.Selection{Banner: selection.Banner, Modal: selection.Modal})
			if selection.Modal == nil {
				return nil
			}

			select {
			case <-shown:
				return nil
			case <-cmd.Context().Done():
				scheduler.Cancel()
				return cmd.Context().Err()
			}
		}),
	}
	flags := cmd.Flags()
	flags.StringVar(&path, "path", "/", "page path, optionally with a locale prefix")
	flags.StringVar(&language, "lang", "", "visitor language")
	flags.StringVar(&region, "region", "", "visitor region")
	flags.StringSliceVar(&dismissed, "dismissed", nil, "overlay ids the visitor has closed")
	flags.DurationVar(&modalDelay, "modal-delay", 0, "override the configured modal delay")
	return cmd
}
