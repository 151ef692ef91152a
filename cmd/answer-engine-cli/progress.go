package main

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"
)

// StageBar displays deterministic pipeline progress with a stage label.
type StageBar struct {
	bar *progressbar.ProgressBar
}

// NewStageBar creates a progress bar scaled to 100 units of pipeline progress.
func NewStageBar(description string) *StageBar {
	bar := progressbar.NewOptions64(
		100,
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &StageBar{bar: bar}
}

// Update moves the bar to the given fraction and relabels the stage.
func (p *StageBar) Update(progress float64, stage string) {
	if stage != "" {
		p.bar.Describe(stage)
	}
	_ = p.bar.Set64(int64(progress * 100))
}

// Finish completes the bar.
func (p *StageBar) Finish() {
	_ = p.bar.Finish()
}

// WaitSpinner shows indeterminate progress while a provider call runs.
type WaitSpinner struct {
	spinner *spinner.Spinner
}

// NewWaitSpinner creates a spinner with the given message.
func NewWaitSpinner(message string) *WaitSpinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr
	return &WaitSpinner{spinner: s}
}

// Start starts the spinner animation.
func (s *WaitSpinner) Start() {
	s.spinner.Start()
}

// Stop stops the spinner animation and clears the line.
func (s *WaitSpinner) Stop() {
	s.spinner.Stop()
}

// UpdateMessage updates the spinner's message.
func (s *WaitSpinner) UpdateMessage(message string) {
	s.spinner.Suffix = " " + message
}
