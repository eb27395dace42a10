package notify

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dgnsrekt/gexflow/internal/alert"
)

var kindTags = map[alert.Kind]string{
	alert.BigBlock:      "whale",
	alert.Imbalance:     "scales",
	alert.HighVolume:    "loud_sound",
	alert.CVDDivergence: "warning",
}

// FormatTitle creates the notification title.
func FormatTitle(symbol string, a alert.Alert) string {
	title := fmt.Sprintf("%s %s", a.Severity, a.Kind)
	if symbol != "" {
		title = symbol + " " + title
	}
	return title
}

// FormatAlertMessage creates the notification body.
func FormatAlertMessage(a alert.Alert) string {
	var sb strings.Builder

	sb.WriteString(a.Payload.Message)
	sb.WriteString("\n\n")
	if a.Payload.Direction != "" {
		sb.WriteString(fmt.Sprintf("Direction: %s\n", a.Payload.Direction))
	}
	if a.Payload.Price != 0 {
		sb.WriteString(fmt.Sprintf("Price: %.2f\n", a.Payload.Price))
	}
	if math.IsInf(a.Payload.Value, 0) {
		sb.WriteString("Value: unbounded\n")
	} else {
		sb.WriteString(fmt.Sprintf("Value: %.2f\n", a.Payload.Value))
	}
	sb.WriteString(fmt.Sprintf("Threshold: %.2f\n", a.Payload.Threshold))
	sb.WriteString(fmt.Sprintf("Seq: %d\n", a.Seq))
	sb.WriteString(fmt.Sprintf("Time: %s", a.Timestamp.UTC().Format(time.RFC3339)))

	return sb.String()
}

// tagsFor joins the configured tags with the per-kind emoji.
func tagsFor(base string, k alert.Kind) string {
	tag, ok := kindTags[k]
	if !ok {
		return base
	}
	if base == "" {
		return tag
	}
	return base + "," + tag
}

// priorityFor raises CRITICAL alerts to at least high.
func priorityFor(base string, s alert.Severity) string {
	if s != alert.Critical {
		return base
	}
	if base == "urgent" {
		return base
	}
	return "high"
}
