package database

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"appraisal/internal/types"
)

// Default export file names inside a data directory.
const (
	PrimaryFile      = "PropertyData_R_2025.txt"
	SupplementalFile = "PropertyDataSupplemental_R_2025.txt"
)

// supplementalColumns are taken from the supplemental export, overriding the
// primary record.
var supplementalColumns = []string{
	colLatitude, colLongitude, colLastSaleDate, colSubdivision, colSalePrice,
}

// File reads the district's pipe-delimited exports. Supplemental is optional.
type File struct {
	Primary      string
	Supplemental string
}

// NewFileSource uses the standard export names inside dir.
func NewFileSource(dir string) *File {
	return &File{
		Primary:      filepath.Join(dir, PrimaryFile),
		Supplemental: filepath.Join(dir, SupplementalFile),
	}
}

func (f *File) Close() error { return nil }

// Properties reads the primary export, merges the supplemental export by
// account number and converts the result.
func (f *File) Properties(ctx context.Context, flt Filter) ([]types.PropertyRecord, error) {
	byAcct := make(map[string]map[string]string)
	var mu sync.Mutex
	if err := readFile(ctx, f.Primary, func(record map[string]string) {
		acct := record[colAccount]
		if acct == "" {
			return
		}
		mu.Lock()
		byAcct[acct] = record
		mu.Unlock()
	}); err != nil {
		return nil, err
	}

	if f.Supplemental != "" {
		err := readFile(ctx, f.Supplemental, func(record map[string]string) {
			acct := record[colSupAccount]
			mu.Lock()
			defer mu.Unlock()
			base, ok := byAcct[acct]
			if !ok {
				// Only merge if we already have the base record.
				return
			}
			for _, c := range supplementalColumns {
				if v := record[c]; v != "" {
					base[c] = v
				}
			}
		})
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	props := make([]types.PropertyRecord, 0, len(byAcct))
	for _, rec := range byAcct {
		if p, ok := fromColumns(rec); ok {
			props = append(props, p)
		}
	}
	return finish(props, flt), nil
}

// readFile iterates through a |-delimited file with a header row, calling fn
// for each record from several goroutines.
func readFile(ctx context.Context, path string, fn func(record map[string]string)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024) // allow very long lines

	if !scanner.Scan() {
		return fmt.Errorf("file %s is empty", path)
	}
	header := strings.Split(scanner.Text(), "|")
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	// Pipeline: producer (I/O) -> workers (CPU-bound parsing)
	linesCh := make(chan string, 4096)

	workers := runtime.NumCPU()
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for line := range linesCh {
				cols := strings.Split(line, "|")
				rec := make(map[string]string, len(header))
				for j, h := range header {
					if j < len(cols) {
						rec[h] = strings.TrimSpace(cols[j])
					}
				}
				fn(rec)
			}
		}()
	}

	var cancelled error
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		linesCh <- scanner.Text()
	}
	close(linesCh)
	wg.Wait()

	if cancelled != nil {
		return cancelled
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}
