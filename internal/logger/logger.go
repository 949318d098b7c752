/**
 * @description
 * Structured logger construction for the AutoValor backend.
 * Services receive a *logrus.Logger through their constructors; nothing logs through
 * ambient package state.
 *
 * @dependencies
 * - github.com/sirupsen/logrus
 */

package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logger appropriate for the given environment.
// Production emits JSON to stdout so the platform log collector can parse fields;
// development keeps the human-readable text formatter.
func New(env string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	switch env {
	case "production":
		log.SetFormatter(&logrus.JSONFormatter{})
		log.SetLevel(logrus.InfoLevel)
	case "test":
		log.SetLevel(logrus.WarnLevel)
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		log.SetLevel(logrus.DebugLevel)
	}

	return log
}
