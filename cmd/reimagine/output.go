package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"reimagine/internal/format"
	"reimagine/internal/models"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeImageList(images []models.Image) error {
	if len(images) == 0 {
		return writePlain("no images\n")
	}
	for _, image := range images {
		if err := writePlain("%s\n", formatImageLine(image)); err != nil {
			return err
		}
	}
	return nil
}

func writeImageDetail(image models.Image) error {
	lines := []string{
		fmt.Sprintf("id: %s", image.ID),
		fmt.Sprintf("filename: %s", image.Filename),
		fmt.Sprintf("comment: %s", image.Comment),
	}
	if image.HasGenerated() {
		lines = append(lines, fmt.Sprintf("generated_filename: %s", image.GeneratedName()))
	}
	lines = append(lines,
		fmt.Sprintf("created_at: %s", formatTime(image.CreatedAt)),
		fmt.Sprintf("updated_at: %s", formatTime(image.UpdatedAt)),
	)
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func formatImageLine(image models.Image) string {
	marker := "○"
	generated := "-"
	if image.HasGenerated() {
		marker = "●"
		generated = image.GeneratedName()
	}
	line := fmt.Sprintf("%s %s -> %s", marker, image.Filename, generated)
	if image.Comment != "" {
		line += fmt.Sprintf(" (%s)", image.Comment)
	}
	return line
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
