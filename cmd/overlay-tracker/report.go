package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/dep2p/go-overlay/pkg/types"
)

// topologySource 报表读取的拓扑快照
type topologySource interface {
	Topologies() map[types.StreamPartID]map[types.NodeID][]types.NodeID
}

// writeTopology 以表格输出每个流分区的邻接表
func writeTopology(w io.Writer, topologies map[types.StreamPartID]map[types.NodeID][]types.NodeID) {
	parts := make([]types.StreamPartID, 0, len(topologies))
	for sp := range topologies {
		parts = append(parts, sp)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].String() < parts[j].String() })

	rows := make([][]string, 0)
	for _, sp := range parts {
		topology := topologies[sp]
		nodes := make([]types.NodeID, 0, len(topology))
		for n := range topology {
			nodes = append(nodes, n)
		}
		sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

		for _, n := range nodes {
			neighbors := types.NodeIDsToStrings(topology[n])
			sort.Strings(neighbors)
			rows = append(rows, []string{
				sp.String(),
				n.String(),
				fmt.Sprint(len(neighbors)),
				strings.Join(neighbors, " "),
			})
		}
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Stream Part", "Node", "Degree", "Neighbors"})
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.AppendBulk(rows)
	table.Render()
}

// reportLoop 按间隔输出拓扑报表，直到 ctx 取消
func reportLoop(ctx context.Context, w io.Writer, src topologySource, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeTopology(w, src.Topologies())
		}
	}
}
