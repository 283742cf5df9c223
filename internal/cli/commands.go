package cli

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/eventstore"
)

// newMigrateCommand constructs the `migrate` command.
func newMigrateCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the documents table (SQL backends and DynamoDB)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.docs.migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			e.log.WithField("table", e.cfg.Table).Info("documents table ready")
			return nil
		},
	}
}

// newCreateCommand constructs the `create` command.
func newCreateCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <stream-id>",
		Short: "Create an empty stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metadata, err := optionalPayload(cmd, "metadata")
			if err != nil {
				return err
			}
			if err := e.store.CreateStream(cmd.Context(), args[0], metadata); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"stream_id": args[0], "version": es.InitialVersion})
		},
	}
	cmd.Flags().String("metadata", "", "Stream metadata as type:data")
	return cmd
}

// newAppendCommand constructs the `append` command.
func newAppendCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append <stream-id>",
		Short: "Append events to a stream",
		Example: `  streamctl append order-1 --expected none --event 'OrderPlaced:{"total":10}'
  streamctl append order-1 --expected 1 --event OrderShipped:@shipped.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expectedFlag, _ := cmd.Flags().GetString("expected")
			expected, err := parseExpected(expectedFlag)
			if err != nil {
				return err
			}
			specs, _ := cmd.Flags().GetStringArray("event")
			if len(specs) == 0 {
				return fmt.Errorf("at least one --event is required")
			}
			events := make([]es.EventData, 0, len(specs))
			for _, spec := range specs {
				p, err := parsePayload(spec)
				if err != nil {
					return err
				}
				events = append(events, es.EventData{Body: p})
			}

			var opts []eventstore.AppendOption
			metadata, err := optionalPayload(cmd, "metadata")
			if err != nil {
				return err
			}
			if metadata != nil {
				opts = append(opts, eventstore.WithMetadata(metadata))
			}

			version, err := e.store.Append(cmd.Context(), args[0], expected, events, opts...)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"stream_id": args[0], "version": version})
		},
	}
	cmd.Flags().String("expected", "any", "Expected version: any|none|<n>")
	cmd.Flags().StringArray("event", nil, "Event as type:data, or type:@file (repeatable)")
	cmd.Flags().String("metadata", "", "Replace stream metadata, as type:data")
	return cmd
}

// newReadCommand constructs the `read` command.
func newReadCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <stream-id>",
		Short: "Read a stream as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []eventstore.ReadOption
			if cmd.Flags().Changed("max-version") {
				v, _ := cmd.Flags().GetInt64("max-version")
				opts = append(opts, eventstore.WithMaxVersion(v))
			}
			headerOnly, _ := cmd.Flags().GetBool("header")

			if headerOnly {
				h, ok, err := e.store.ReadHeader(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("stream %q not found", args[0])
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"stream_id": h.StreamID,
					"version":   h.Version,
					"metadata":  viewOf(h.Metadata),
				})
			}

			stream, ok, err := e.store.ReadStream(cmd.Context(), args[0], opts...)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("stream %q not found", args[0])
			}
			return writeJSON(cmd.OutOrStdout(), streamViewOf(stream))
		},
	}
	cmd.Flags().Int64("max-version", 0, "Read the stream as of this version")
	cmd.Flags().Bool("header", false, "Print only the stream header")
	return cmd
}

// newSnapshotCommand constructs the `snapshot` command.
func newSnapshotCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot <stream-id>",
		Short: "Record a snapshot at a written version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, _ := cmd.Flags().GetInt64("version")
			spec, _ := cmd.Flags().GetString("data")
			data, err := parsePayload(spec)
			if err != nil {
				return err
			}
			metadata, err := optionalPayload(cmd, "metadata")
			if err != nil {
				return err
			}
			if err := e.store.Snapshot(cmd.Context(), args[0], version, data, metadata); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"stream_id": args[0], "snapshot_version": version})
		},
	}
	cmd.Flags().Int64("version", 0, "Stream version the snapshot represents")
	cmd.Flags().String("data", "", "Snapshot state as type:data, or type:@file")
	cmd.Flags().String("metadata", "", "Snapshot metadata as type:data")
	_ = cmd.MarkFlagRequired("version")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func parseExpected(s string) (es.ExpectedVersion, error) {
	switch s {
	case "any", "":
		return es.Any(), nil
	case "none", "no-stream":
		return es.NoStream(), nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return es.ExpectedVersion{}, fmt.Errorf("invalid --expected %q; use any|none|<n>", s)
	}
	return es.Exact(v), nil
}

// parsePayload parses type:data. A data part starting with @ names a file,
// @- reads stdin.
func parsePayload(spec string) (es.Payload, error) {
	typ, data, ok := strings.Cut(spec, ":")
	if !ok || typ == "" {
		return es.Payload{}, fmt.Errorf("invalid payload %q; want type:data", spec)
	}
	if path, isFile := strings.CutPrefix(data, "@"); isFile {
		var (
			b   []byte
			err error
		)
		if path == "-" {
			b, err = io.ReadAll(os.Stdin)
		} else {
			b, err = os.ReadFile(path)
		}
		if err != nil {
			return es.Payload{}, fmt.Errorf("read payload %s: %w", path, err)
		}
		return es.Payload{Type: typ, Data: b}, nil
	}
	return es.Payload{Type: typ, Data: []byte(data)}, nil
}

func optionalPayload(cmd *cobra.Command, flag string) (*es.Payload, error) {
	spec, _ := cmd.Flags().GetString(flag)
	if spec == "" {
		return nil, nil
	}
	p, err := parsePayload(spec)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type payloadView struct {
	Type       string `json:"type"`
	Data       string `json:"data,omitempty"`
	DataBase64 string `json:"data_base64,omitempty"`
}

type eventView struct {
	Metadata *payloadView `json:"metadata,omitempty"`
	Body     payloadView  `json:"body"`
	Version  int64        `json:"version"`
}

type snapshotView struct {
	Metadata *payloadView `json:"metadata,omitempty"`
	Data     payloadView  `json:"data"`
	Version  int64        `json:"version"`
}

type streamView struct {
	Metadata *payloadView  `json:"metadata,omitempty"`
	Snapshot *snapshotView `json:"snapshot,omitempty"`
	StreamID string        `json:"stream_id"`
	Events   []eventView   `json:"events"`
	Version  int64         `json:"version"`
}

// viewOf prints UTF-8 data as text and anything else as base64.
func viewOf(p *es.Payload) *payloadView {
	if p == nil {
		return nil
	}
	v := &payloadView{Type: p.Type}
	if utf8.Valid(p.Data) {
		v.Data = string(p.Data)
	} else {
		v.DataBase64 = base64.StdEncoding.EncodeToString(p.Data)
	}
	return v
}

func streamViewOf(s es.Stream) streamView {
	out := streamView{
		StreamID: s.StreamID,
		Version:  s.Version,
		Metadata: viewOf(s.Metadata),
		Events:   make([]eventView, 0, len(s.Events)),
	}
	if s.Snapshot != nil {
		out.Snapshot = &snapshotView{
			Version:  s.Snapshot.Version,
			Data:     *viewOf(&s.Snapshot.Data),
			Metadata: viewOf(s.Snapshot.Metadata),
		}
	}
	for _, ev := range s.Events {
		out.Events = append(out.Events, eventView{
			Version:  ev.Version,
			Body:     *viewOf(&ev.Body),
			Metadata: viewOf(ev.Metadata),
		})
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
