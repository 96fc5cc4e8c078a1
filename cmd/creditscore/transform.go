package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"creditscore/internal/artifact"
	"creditscore/internal/blob"
	"creditscore/internal/config"
	"creditscore/internal/preprocess"
)

func newTransformCmd(a *app) *cobra.Command {
	var (
		input string
		stamp string
	)
	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Turn JSON-lines applications into feature rows",
		Long: `transform reads one JSON object per line and prints the feature column
names followed by one JSON array per application. Artifacts come from the
promoted model unless --stamp names an extraction date.`,
		Example: `  creditscore transform --input applications.jsonl
  creditscore transform --input - --stamp 20241102 < applications.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cols, err := config.LoadSchemaFile(a.cfg.SchemaFile)
			if err != nil {
				return err
			}
			pipe, err := preprocess.New(cols)
			if err != nil {
				return err
			}
			store, err := blob.Open(ctx, a.cfg.Blob)
			if err != nil {
				return err
			}
			repo := artifact.New(store)

			keys, err := artifactKeys(cmd, repo, stamp)
			if err != nil {
				return err
			}
			arts, err := repo.LoadArtifacts(ctx, keys)
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			rs, err := readRecords(in)
			if err != nil {
				return err
			}
			m, err := pipe.Transform(rs, arts)
			if err != nil {
				return err
			}
			return writeMatrix(cmd.OutOrStdout(), m)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "JSON-lines file, - for stdin")
	cmd.Flags().StringVar(&stamp, "stamp", "", "extraction date (YYYYMMDD) of the artifacts")
	return cmd
}

func artifactKeys(cmd *cobra.Command, repo *artifact.Repository, stamp string) (artifact.ArtifactKeys, error) {
	if stamp != "" {
		return artifact.ArtifactKeys{
			NumImputer: artifact.ArtifactKey(artifact.KindNumImputer, stamp),
			CatImputer: artifact.ArtifactKey(artifact.KindCatImputer, stamp),
			OneHot:     artifact.ArtifactKey(artifact.KindOneHot, stamp),
			Scaler:     artifact.ArtifactKey(artifact.KindScaler, stamp),
		}, nil
	}
	best, err := repo.LoadBest(cmd.Context())
	if errors.Is(err, artifact.ErrNoBestModel) {
		return artifact.ArtifactKeys{}, fmt.Errorf("%w: pass --stamp", err)
	}
	return best.Artifacts, err
}

func readRecords(r io.Reader) (preprocess.RecordSet, error) {
	var rs preprocess.RecordSet
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for line := 1; sc.Scan(); line++ {
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := preprocess.RecordFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rs = append(rs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(rs) == 0 {
		return nil, preprocess.ErrEmptyRecordSet
	}
	return rs, nil
}

func writeMatrix(w io.Writer, m preprocess.Matrix) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(m.Columns); err != nil {
		return err
	}
	for _, row := range m.Rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}
