package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"uptimeboard/internal/models"

	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor management commands",
}

var monitorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitors with their current numbers",
	RunE:  runMonitorList,
}

var monitorAddWebsiteCmd = &cobra.Command{
	Use:   "add-website",
	Short: "Add a website monitor",
	RunE:  runMonitorAdd(models.MonitorTypeWebsite),
}

var monitorAddAPICmd = &cobra.Command{
	Use:   "add-api",
	Short: "Add an API monitor",
	RunE:  runMonitorAdd(models.MonitorTypeAPI),
}

var monitorUpdateCmd = &cobra.Command{
	Use:   "update [uuid]",
	Short: "Edit a monitor; flags left unset keep their current values",
	Args:  cobra.ExactArgs(1),
	RunE:  runMonitorUpdate,
}

var monitorDeleteCmd = &cobra.Command{
	Use:   "delete [uuid]",
	Short: "Delete a monitor",
	Args:  cobra.ExactArgs(1),
	RunE:  runMonitorDelete,
}

var monitorPauseCmd = &cobra.Command{
	Use:   "pause [uuid]",
	Short: "Pause a monitor",
	Args:  cobra.ExactArgs(1),
	RunE:  runMonitorStatus(models.MonitorPaused),
}

var monitorResumeCmd = &cobra.Command{
	Use:   "resume [uuid]",
	Short: "Resume a paused monitor",
	Args:  cobra.ExactArgs(1),
	RunE:  runMonitorStatus(models.MonitorActive),
}

var monitorReq struct {
	name          string
	url           string
	refresh       int
	occurrences   int
	parallelLimit int
	method        string
	headers       map[string]string
	body          string
}

func init() {
	for _, cmd := range []*cobra.Command{monitorAddWebsiteCmd, monitorAddAPICmd} {
		cmd.Flags().StringVar(&monitorReq.name, "name", "", "Monitor name")
		cmd.Flags().StringVar(&monitorReq.url, "url", "", "URL to ping")
		cmd.Flags().IntVar(&monitorReq.refresh, "refresh", 60, "Seconds between pings")
		cmd.Flags().IntVar(&monitorReq.occurrences, "occurrences", 1, "Requests per ping")
		cmd.Flags().IntVar(&monitorReq.parallelLimit, "parallel", 1, "Concurrent requests per ping")
		cmd.MarkFlagRequired("name")
		cmd.MarkFlagRequired("url")
	}
	for _, cmd := range []*cobra.Command{monitorAddAPICmd, monitorUpdateCmd} {
		cmd.Flags().StringVar(&monitorReq.method, "method", "GET", "HTTP method")
		cmd.Flags().StringToStringVar(&monitorReq.headers, "header", nil, "Request header as key=value (repeatable)")
		cmd.Flags().StringVar(&monitorReq.body, "body", "", "JSON request body")
	}
	monitorUpdateCmd.Flags().StringVar(&monitorReq.name, "name", "", "Monitor name")
	monitorUpdateCmd.Flags().StringVar(&monitorReq.url, "url", "", "URL to ping")
	monitorUpdateCmd.Flags().IntVar(&monitorReq.refresh, "refresh", 60, "Seconds between pings")
	monitorUpdateCmd.Flags().IntVar(&monitorReq.occurrences, "occurrences", 1, "Requests per ping")
	monitorUpdateCmd.Flags().IntVar(&monitorReq.parallelLimit, "parallel", 1, "Concurrent requests per ping")

	monitorCmd.AddCommand(monitorListCmd)
	monitorCmd.AddCommand(monitorAddWebsiteCmd)
	monitorCmd.AddCommand(monitorAddAPICmd)
	monitorCmd.AddCommand(monitorUpdateCmd)
	monitorCmd.AddCommand(monitorDeleteCmd)
	monitorCmd.AddCommand(monitorPauseCmd)
	monitorCmd.AddCommand(monitorResumeCmd)
}

func runMonitorList(cmd *cobra.Command, args []string) error {
	_, store, api, err := openClient()
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := api.GetAllAnalytics(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "UUID\tNAME\tSTATUS\tCODE\tLAST MS\tAVG MS\tUPTIME")
	for _, m := range snap.Monitors {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.0f\t%.0f\t%.2f%%\n",
			m.UUID, m.Name, m.Status, m.CurrentStatusCode, m.LastTimeTaken, m.AverageResponseTime, m.UptimePercent)
	}
	fmt.Fprintf(w, "\n%d monitors (%d active, %d paused), average uptime %.2f%%\n",
		snap.TotalMonitors, snap.ActiveMonitors, snap.PausedMonitors, snap.AverageUptime)
	return w.Flush()
}

func runMonitorAdd(kind models.MonitorType) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		_, store, api, err := openClient()
		if err != nil {
			return err
		}
		defer store.Close()

		req := models.MonitorRequest{
			Name:          monitorReq.name,
			URL:           monitorReq.url,
			RefreshTime:   monitorReq.refresh,
			Occurrences:   monitorReq.occurrences,
			ParallelLimit: monitorReq.parallelLimit,
		}

		var m *models.Monitor
		switch kind {
		case models.MonitorTypeAPI:
			req.APIType = monitorReq.method
			req.Headers = monitorReq.headers
			if monitorReq.body != "" {
				if !json.Valid([]byte(monitorReq.body)) {
					return fmt.Errorf("--body is not valid JSON")
				}
				req.RequestBody = json.RawMessage(monitorReq.body)
			}
			m, err = api.AddAPIMonitor(cmd.Context(), req)
		default:
			m, err = api.AddWebsiteMonitor(cmd.Context(), req)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Monitor created: %s (%s)\n", m.Name, m.UUID)
		return nil
	}
}

func runMonitorUpdate(cmd *cobra.Command, args []string) error {
	_, store, api, err := openClient()
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := api.GetAllAnalytics(cmd.Context())
	if err != nil {
		return err
	}
	current := snap.Find(args[0])
	if current == nil {
		return fmt.Errorf("monitor %s not found", args[0])
	}

	req, err := updateRequest(current, cmd.Flags().Changed)
	if err != nil {
		return err
	}
	if err := api.UpdateMonitor(cmd.Context(), args[0], req); err != nil {
		return err
	}
	fmt.Printf("Monitor %s updated\n", args[0])
	return nil
}

// updateRequest starts from the monitor as the backend reports it and
// applies the flags the user set
func updateRequest(current *models.Monitor, changed func(string) bool) (models.MonitorRequest, error) {
	req := models.MonitorRequest{
		Name:          current.Name,
		URL:           current.URL,
		RefreshTime:   current.RefreshTime,
		Occurrences:   monitorReq.occurrences,
		ParallelLimit: monitorReq.parallelLimit,
	}
	if changed("name") {
		req.Name = monitorReq.name
	}
	if changed("url") {
		req.URL = monitorReq.url
	}
	if changed("refresh") || req.RefreshTime == 0 {
		req.RefreshTime = monitorReq.refresh
	}
	if current.Type == models.MonitorTypeAPI || changed("method") {
		req.APIType = monitorReq.method
	}
	if changed("header") {
		req.Headers = monitorReq.headers
	}
	if changed("body") {
		if !json.Valid([]byte(monitorReq.body)) {
			return req, fmt.Errorf("--body is not valid JSON")
		}
		req.RequestBody = json.RawMessage(monitorReq.body)
	}
	return req, nil
}

func runMonitorDelete(cmd *cobra.Command, args []string) error {
	_, store, api, err := openClient()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := api.DeleteMonitor(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Monitor %s deleted\n", args[0])
	return nil
}

func runMonitorStatus(status models.MonitorStatus) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		_, store, api, err := openClient()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := api.UpdateMonitorStatus(cmd.Context(), args[0], status); err != nil {
			return err
		}
		fmt.Printf("Monitor %s is now %s\n", args[0], status)
		return nil
	}
}
