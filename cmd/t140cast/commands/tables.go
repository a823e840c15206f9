package commands

import (
	"strconv"
	"time"

	"github.com/haivivi/t140cast/pkg/assist"
	"github.com/haivivi/t140cast/pkg/cli"
	"github.com/haivivi/t140cast/pkg/device"
	"github.com/haivivi/t140cast/pkg/fanout"
	"github.com/haivivi/t140cast/pkg/httpapi"
)

var styles = cli.NewStyles(cli.DefaultTheme)

type deviceTable []*device.Record

func (deviceTable) Header() []string {
	return []string{"ID", "NAME", "TYPE", "PROTOCOL", "ADDRESS", "STATUS", "LAST CONNECTED"}
}

func (t deviceTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, r := range t {
		last := "-"
		if r.LastConnected != nil {
			last = r.LastConnected.Local().Format(time.DateTime)
		}
		rows[i] = []string{
			r.ID, r.Name, r.Type.String(), r.Protocol.String(),
			r.Address.String(),
			styles.Status(r.Status.String()), last,
		}
	}
	return rows
}

type connectionTable []httpapi.ConnectionView

func (connectionTable) Header() []string {
	return []string{"DEVICE", "NAME", "PROTOCOL", "STATUS", "CONNECTED"}
}

func (t connectionTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, c := range t {
		rows[i] = []string{
			c.DeviceID, c.DeviceName, c.Protocol.String(),
			styles.Status(c.Status.String()),
			c.ConnectedAt.Local().Format(time.DateTime),
		}
	}
	return rows
}

type providerTable assist.Providers

func (providerTable) Header() []string {
	return []string{"PROVIDER", "AVAILABLE", "DEFAULT"}
}

func (t providerTable) Rows() [][]string {
	rows := make([][]string, len(t.Providers))
	for i, p := range t.Providers {
		def := ""
		if p.Provider == t.Default {
			def = "*"
		}
		rows[i] = []string{p.Provider, strconv.FormatBool(p.Available), def}
	}
	return rows
}

type resultTable []fanout.Result

func (resultTable) Header() []string {
	return []string{"DEVICE", "SUCCESS", "REASON"}
}

func (t resultTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, r := range t {
		reason := string(r.Reason)
		if reason == "" {
			reason = "-"
		}
		rows[i] = []string{r.DeviceID, strconv.FormatBool(r.Success), reason}
	}
	return rows
}
