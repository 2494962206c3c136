package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/audiolibrelab/micstream/internal/service"
)

// executePipeline runs the steps that follow startStep in the -p pipeline.
func executePipeline(ctx context.Context, svc service.Service, name string, startStep rune) error {
	if pipeline == "" {
		return nil
	}

	steps := []rune(strings.ToLower(pipeline))

	// Find the starting position in the pipeline
	startIndex := -1
	for i, step := range steps {
		if step == startStep {
			startIndex = i
			break
		}
	}

	if startIndex == -1 {
		return fmt.Errorf("step '%c' not found in pipeline '%s'", startStep, pipeline)
	}

	for i := startIndex + 1; i < len(steps); i++ {
		fmt.Printf("Pipeline: executing step '%c'...\n", steps[i])
		if err := runStep(ctx, svc, name, steps[i]); err != nil {
			return err
		}
	}

	return nil
}

func runStep(ctx context.Context, svc service.Service, name string, step rune) error {
	switch step {
	case 'r':
		info, err := svc.Record(ctx, name)
		if err != nil {
			return fmt.Errorf("pipeline record failed: %w", err)
		}
		fmt.Printf("Pipeline: recording completed (%s, %s)\n", info.File, info.SizeHuman)

	case 'p':
		if err := svc.Play(name); err != nil {
			return fmt.Errorf("pipeline play failed: %w", err)
		}
		fmt.Println("Pipeline: playback completed")

	default:
		return fmt.Errorf("unknown pipeline step: '%c' (valid: r=record, p=play)", step)
	}
	return nil
}

func validatePipeline() error {
	if pipeline == "" {
		return nil
	}

	validSteps := map[rune]bool{
		'r': true, // record
		'p': true, // play
	}

	steps := []rune(strings.ToLower(pipeline))
	for _, step := range steps {
		if !validSteps[step] {
			return fmt.Errorf("invalid pipeline step: '%c' (valid: r=record, p=play)", step)
		}
	}

	return nil
}
