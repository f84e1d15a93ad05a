package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/srg/hrbridge/internal/sensor"
	"github.com/srg/hrbridge/internal/sensor/ant"
)

// portsCmd lists ANT+ sticks and the available sensor kinds
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List ANT+ USB sticks and sensor kinds",
	Long: `Lists the serial ports that belong to ANT+ USB sticks (vendor 0fcf) and the
sensor kinds this build supports. Use the port name with 'hrbridge run --port'
when more than one stick is plugged in.`,
	Args: cobra.NoArgs,
	RunE: runPorts,
}

var portsFormat string

func init() {
	portsCmd.Flags().StringVarP(&portsFormat, "format", "f", "table", "Output format (table, json)")
}

type portEntry struct {
	Name         string `json:"name"`
	VID          string `json:"vid"`
	PID          string `json:"pid"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

func runPorts(cmd *cobra.Command, _ []string) error {
	if portsFormat != "table" && portsFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", portsFormat)
	}
	cmd.SilenceUsage = true

	sticks, err := ant.Sticks()
	if err != nil {
		return err
	}

	entries := make([]portEntry, 0, len(sticks))
	for _, s := range sticks {
		entries = append(entries, portEntry{
			Name:         s.Name,
			VID:          s.VID,
			PID:          s.PID,
			SerialNumber: s.SerialNumber,
			Product:      s.Product,
		})
	}

	out := cmd.OutOrStdout()
	if portsFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"sensors": sensor.Names(),
			"ports":   entries,
		})
	}

	fmt.Fprintf(out, "Sensors: %v\n\n", sensor.Names())
	if len(entries) == 0 {
		fmt.Fprintln(out, "No ANT+ sticks found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PORT\tUSB ID\tSERIAL\tPRODUCT")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s:%s\t%s\t%s\n", e.Name, e.VID, e.PID, e.SerialNumber, e.Product)
	}
	return w.Flush()
}
