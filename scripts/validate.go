package main

import (
	"flag"
	"log/slog"

	"truefantix/internal/logger"
	"truefantix/internal/validation"
)

func main() {
	var baseURL string
	flag.StringVar(&baseURL, "url", "http://localhost:8080", "Base URL for API validation")
	flag.Parse()

	logger.Init("info", "text")
	slog.Info("Starting API validation", "url", baseURL)

	validator, err := validation.NewAPIValidator(baseURL)
	if err != nil {
		logger.Fatal("Failed to create validator", "error", err)
	}
	if err := validator.ValidateAll(); err != nil {
		logger.Fatal("❌ Валидация не пройдена", "error", err)
	}

	slog.Info("✅ Валидация успешно пройдена!")
}
