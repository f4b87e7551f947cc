package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"emlink/internal/pipeline"
	"emlink/internal/ui"
)

type linkOutcome struct {
	result pipeline.Result
	err    error
}

// runLinkWithUI runs the link in the background while a progress view
// consumes its events on stdout.
func runLinkWithUI(ctx context.Context, title string, req *pipeline.Request) (pipeline.Result, error) {
	events := make(chan pipeline.Event, 64)
	outcomeCh := make(chan linkOutcome, 1)

	go func() {
		reqCopy := *req
		reqCopy.Progress = pipeline.ChannelSink{Ch: events}
		res, err := pipeline.Link(ctx, &reqCopy)
		outcomeCh <- linkOutcome{result: res, err: err}
		close(events)
	}()

	program := tea.NewProgram(ui.NewProgressModel(title, events), tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	if uiErr != nil {
		// Keep draining so the link goroutine never blocks on a full channel.
		for range events {
		}
	}
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
