// Package clusters attaches semantic names to the clusters found by the
// analysis stage.
package clusters

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	clusterColumn  = "cluster"
	nameColumn     = "cluster_name"
	companyColumn  = "company_name"
	industryColumn = "industry_focus"
	maxExamples    = 3
)

var ErrNoClusterColumn = errors.New("no 'cluster' column found in the data")

type Summary struct {
	ID       int
	Name     string
	Count    int
	Examples []string
	// Industries holds the industry_focus of the first rows in the cluster.
	// Empty when the data has no such column.
	Industries []string
}

type Result struct {
	File     string
	Rows     int
	Clusters []Summary
}

// Label sets the cluster_name column of the CSV at path from names and
// rewrites the file in place. Rows whose cluster id has no name get an
// empty cluster_name.
func Label(path string, names map[int]string) (Result, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return Result{}, err
	}

	clusterIdx := indexOf(header, clusterColumn)
	if clusterIdx < 0 {
		return Result{}, fmt.Errorf("%s: %w", path, ErrNoClusterColumn)
	}
	companyIdx := indexOf(header, companyColumn)
	industryIdx := indexOf(header, industryColumn)
	nameIdx := indexOf(header, nameColumn)
	if nameIdx < 0 {
		header = append(header, nameColumn)
		nameIdx = len(header) - 1
	}

	byID := make(map[int]*Summary, len(names))
	for id, name := range names {
		byID[id] = &Summary{ID: id, Name: name}
	}

	for i, row := range rows {
		for len(row) < len(header) {
			row = append(row, "")
		}

		id, ok := parseClusterID(row[clusterIdx])
		name := ""
		if ok {
			name = names[id]
		}
		row[nameIdx] = name
		rows[i] = row

		s, known := byID[id]
		if !ok || !known {
			continue
		}
		s.Count++
		if companyIdx >= 0 && len(s.Examples) < maxExamples {
			if c := strings.TrimSpace(row[companyIdx]); c != "" {
				s.Examples = append(s.Examples, c)
			}
		}
		if industryIdx >= 0 && len(s.Industries) < maxExamples {
			if ind := strings.TrimSpace(row[industryIdx]); ind != "" {
				s.Industries = append(s.Industries, ind)
			}
		}
	}

	if err := writeCSVAtomic(path, header, rows); err != nil {
		return Result{}, err
	}

	res := Result{File: path, Rows: len(rows)}
	for _, s := range byID {
		res.Clusters = append(res.Clusters, *s)
	}
	sort.Slice(res.Clusters, func(i, j int) bool { return res.Clusters[i].ID < res.Clusters[j].ID })
	return res, nil
}

// Print writes the cluster meanings the way the operator sees them after
// labeling.
func Print(w io.Writer, res Result) {
	fmt.Fprintln(w, "Successfully updated cluster names!")
	fmt.Fprintln(w, "\nCluster meanings:")
	for _, c := range res.Clusters {
		fmt.Fprintf(w, "- Cluster %d: %s\n", c.ID, c.Name)
		fmt.Fprintf(w, "  Example companies: %s\n", strings.Join(c.Examples, ", "))
		if len(c.Industries) > 0 {
			fmt.Fprintf(w, "  Industries: %s\n", strings.Join(c.Industries, ", "))
		}
	}
}

// parseClusterID accepts "2" as well as "2.0", which pandas writes for
// integer columns that once held NaN.
func parseClusterID(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func indexOf(header []string, col string) int {
	for i, h := range header {
		if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == col {
			return i
		}
	}
	return -1
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open clustered data: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", path, ErrNoClusterColumn)
	}
	return records[0], records[1:], nil
}

func writeCSVAtomic(path string, header []string, rows [][]string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := csv.NewWriter(tmp)
	if err = w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err = w.WriteAll(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if info, serr := os.Stat(path); serr == nil {
		_ = os.Chmod(tmp.Name(), info.Mode().Perm())
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
