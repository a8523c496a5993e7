package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sweeney/fridge-sensor/internal/scale"
)

const (
	calibrateTareSamples  = 20
	calibrateLoadSamples  = 10
	calibrationFactorHint = "set scale.calibration_factor in the config file to use it"
)

func newCalibrateCmd(o *options) *cobra.Command {
	var knownGrams float64

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Compute the load cell calibration factor using a known weight.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(options{configPath: configPathFor(cmd, o.configPath)})
			if err != nil {
				return err
			}

			cell, err := scale.OpenHX711(cfg.GPIO.Chip, cfg.Scale.DTPin, cfg.Scale.SCKPin, cfg.Scale.CalibrationFactor)
			if err != nil {
				return fmt.Errorf("init load cell: %w", err)
			}
			defer cell.Close()

			out := cmd.OutOrStdout()
			_, err = calibrate(cell, knownGrams, linePrompt(cmd.InOrStdin(), out), out)
			return err
		},
	}
	cmd.Flags().Float64Var(&knownGrams, "known-grams", 0, "mass of the reference weight in grams (prompted when unset)")
	return cmd
}

// linePrompt writes msg and returns the next trimmed input line.
func linePrompt(in io.Reader, out io.Writer) func(msg string) (string, error) {
	r := bufio.NewReader(in)
	return func(msg string) (string, error) {
		fmt.Fprint(out, msg)
		line, err := r.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}

// calibrate zeroes the empty platform, then measures the reference weight
// and derives raw counts per gram.
func calibrate(cell scale.Cell, knownGrams float64, prompt func(msg string) (string, error), out io.Writer) (float64, error) {
	if _, err := prompt("Remove everything from the scale and press Enter: "); err != nil {
		return 0, err
	}
	zero, err := cell.ReadRaw(calibrateTareSamples)
	if err != nil {
		return 0, fmt.Errorf("read empty scale: %w", err)
	}

	if knownGrams > 0 {
		if _, err := prompt(fmt.Sprintf("Place the %g g weight on the scale and press Enter: ", knownGrams)); err != nil {
			return 0, err
		}
	} else {
		answer, err := prompt("Place a known weight on the scale and enter its mass in grams: ")
		if err != nil {
			return 0, err
		}
		knownGrams, err = strconv.ParseFloat(answer, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid weight %q: %w", answer, err)
		}
	}

	loaded, err := cell.ReadRaw(calibrateLoadSamples)
	if err != nil {
		return 0, fmt.Errorf("read loaded scale: %w", err)
	}

	factor, err := scale.CalibrationFactor(loaded-zero, knownGrams)
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(out, "calibration factor: %.4f (%s)\n", factor, calibrationFactorHint)
	return factor, nil
}
