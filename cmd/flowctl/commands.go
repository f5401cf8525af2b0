package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"traffic_counts/pkg/edgeid"
	"traffic_counts/pkg/flowtree"
	"traffic_counts/pkg/session"
)

func newTreeCmd(opts *rootOptions) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "tree <edge>",
		Short: "Fetch and print the flow tree of a directed edge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := edgeid.Parse(args[0])
			if err != nil {
				return err
			}
			c, err := opts.newClient(cmd)
			if err != nil {
				return err
			}

			rec, err := c.FetchTree(cmd.Context(), id)
			if err != nil {
				return err
			}
			if raw {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}

			tree, err := flowtree.Decode(rec)
			if err != nil {
				return err
			}
			printTree(cmd.OutOrStdout(), tree)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "json", false, "Print the record as served instead of the decoded tree")
	return cmd
}

func newTraceCmd(opts *rootOptions) *cobra.Command {
	var (
		hovers []string
		in     string
	)

	cmd := &cobra.Command{
		Use:   "trace <edge>",
		Short: "Select an edge and print the highlight state after each hover",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := edgeid.Parse(args[0])
			if err != nil {
				return err
			}
			ids := make([]edgeid.DirectedEdgeID, len(hovers))
			for i, h := range hovers {
				if ids[i], err = edgeid.Parse(h); err != nil {
					return err
				}
			}
			dir, restrict, err := parseDirection(in)
			if err != nil {
				return err
			}
			c, err := opts.newClient(cmd)
			if err != nil {
				return err
			}

			rec := session.NewRecorder()
			s := session.New(c, rec)
			if err := s.Select(cmd.Context(), id); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "select %d: %s\n", id, s.State())
			printStates(w, s.Highlights())

			for _, h := range ids {
				var drawn bool
				if restrict {
					drawn = s.HoverIn(h, dir)
				} else {
					drawn = s.Hover(h)
				}
				if !drawn {
					fmt.Fprintf(w, "hover %d: not in tree\n", h)
					continue
				}
				fmt.Fprintf(w, "hover %d: route of %d edges\n", h, len(s.Route()))
				printStates(w, s.Highlights())
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&hovers, "hover", nil, "Edge to hover, in order (repeatable)")
	cmd.Flags().StringVar(&in, "in", "", "Restrict hovers to one sub-tree: origin or destination")
	return cmd
}

func newNearestCmd(opts *rootOptions) *cobra.Command {
	var showTree bool

	cmd := &cobra.Command{
		Use:   "nearest <lat> <lng>",
		Short: "Snap a point to the nearest segment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid latitude %q: %w", args[0], err)
			}
			lng, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid longitude %q: %w", args[1], err)
			}
			c, err := opts.newClient(cmd)
			if err != nil {
				return err
			}

			snap, err := c.Nearest(cmd.Context(), lat, lng)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "segment %d, edge %d, %.1f m\n", snap.SegmentID, snap.EdgeID, snap.DistanceMeters)

			if !showTree {
				return nil
			}
			rec, err := c.FetchTree(cmd.Context(), snap.EdgeID)
			if err != nil {
				return err
			}
			tree, err := flowtree.Decode(rec)
			if err != nil {
				return err
			}
			printTree(w, tree)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showTree, "tree", false, "Also print the flow tree of the snapped edge")
	return cmd
}

func parseDirection(s string) (dir flowtree.Direction, restrict bool, err error) {
	switch s {
	case "":
		return flowtree.Origin, false, nil
	case "origin":
		return flowtree.Origin, true, nil
	case "destination":
		return flowtree.Destination, true, nil
	}
	return 0, false, fmt.Errorf("invalid --in %q: want origin or destination", s)
}

func printTree(w io.Writer, t *flowtree.FlowTree) {
	heading := "forward"
	if !t.Root.IsForward() {
		heading = "backward"
	}
	fmt.Fprintf(w, "edge %d (segment %d %s): %d trips\n", t.Root, t.Root.SegmentID(), heading, t.RootCount)

	for _, dir := range []flowtree.Direction{flowtree.Origin, flowtree.Destination} {
		keys := t.Keys(dir)
		fmt.Fprintf(w, "%ss (%d):\n", dir, len(keys))
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		sub := t.SubTree(dir)
		for _, k := range keys {
			e := sub[k]
			fmt.Fprintf(tw, "  %d\tcount=%d", k, e.Count)
			if len(e.Next) > 0 {
				fmt.Fprintf(tw, "\tnext=%v", e.Next)
			}
			fmt.Fprintln(tw)
		}
		tw.Flush()
	}
}

func printStates(w io.Writer, states map[edgeid.DirectedEdgeID]session.HighlightState) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, id := range slices.Sorted(maps.Keys(states)) {
		fmt.Fprintf(tw, "  %d\t%s\n", id, formatState(states[id]))
	}
	tw.Flush()
}

func formatState(st session.HighlightState) string {
	var parts []string
	if st.Hovered {
		parts = append(parts, "hover")
	}
	if st.Origin {
		parts = append(parts, fmt.Sprintf("origin(count=%d root=%d)", st.OriginCount, st.OriginID))
	}
	if st.Destination {
		parts = append(parts, fmt.Sprintf("destination(count=%d root=%d)", st.DestinationCount, st.DestinationID))
	}
	if st.Route {
		parts = append(parts, "route")
	}
	return strings.Join(parts, " ")
}
