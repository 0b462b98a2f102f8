package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func RespondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.WithError(err).Error("Failed to encode JSON response")
	}
}

func RespondWithError(w http.ResponseWriter, status int, message, requestID string) {
	RespondWithJSON(w, status, ErrorResponse{Error: message, RequestID: requestID})
}

// FormatText puts each sentence on its own line.
func FormatText(text string) string {
	text = strings.TrimSpace(text)
	var builder strings.Builder
	for i, char := range text {
		builder.WriteRune(char)
		if char == '.' || char == '!' || char == '?' {
			if next := i + 1; next < len(text) && text[next] == ' ' {
				builder.WriteRune('\n')
			}
		}
	}
	lines := strings.Split(builder.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.Join(lines, "\n")
}

// FormatTimestamp renders seconds as h:mm:ss.mmm, or m:ss.mmm under an hour.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3_600_000
	m := (ms / 60_000) % 60
	s := (ms / 1000) % 60
	frac := ms % 1000
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d.%03d", h, m, s, frac)
	}
	return fmt.Sprintf("%d:%02d.%03d", m, s, frac)
}
