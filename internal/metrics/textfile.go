package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// WriteTextfile dumps the registry in the text exposition format, for the
// node_exporter textfile collector. The file is replaced atomically.
func WriteTextfile(path string) error {
	return writeTextfile(path, Registry)
}

func writeTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return fmt.Errorf("metrics textfile path is empty")
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
