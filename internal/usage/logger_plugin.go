package usage

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"
)

// LoggerPlugin outputs every usage record to the application log as a
// single JSON line.
type LoggerPlugin struct {
	// Verbose lifts the records from debug to info level.
	Verbose bool
}

// NewLoggerPlugin constructs a logger plugin.
func NewLoggerPlugin(verbose bool) *LoggerPlugin {
	return &LoggerPlugin{Verbose: verbose}
}

// HandleUsage implements Plugin.
func (p *LoggerPlugin) HandleUsage(ctx context.Context, record Record) {
	line := []byte(`{}`)
	line, _ = sjson.SetBytes(line, "requestId", record.RequestID)
	line, _ = sjson.SetBytes(line, "path", record.Path)
	line, _ = sjson.SetBytes(line, "method", record.Method)
	line, _ = sjson.SetBytes(line, "routeClass", record.RouteClass)
	line, _ = sjson.SetBytes(line, "callerId", record.CallerID)
	line, _ = sjson.SetBytes(line, "resourceId", record.ResourceID)
	line, _ = sjson.SetBytes(line, "status", record.StatusCode)
	line, _ = sjson.SetBytes(line, "bytes", record.Bytes)
	line, _ = sjson.SetBytes(line, "latencyMs", record.LatencyMS)
	line, _ = sjson.SetBytes(line, "usedCredit", record.UsedCredit)
	line, _ = sjson.SetBytes(line, "settled", record.Settled)

	if p.Verbose {
		log.Info(string(line))
	} else {
		log.Debug(string(line))
	}
}
