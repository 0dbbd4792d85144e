// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sync

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	gosync "sync"

	"github.com/codevault-ai/codevault/services/vault/parser"
)

const parseChannelBuffer = 100

type parseResult struct {
	path   string
	parsed *parser.ParsedFile
	err    error
}

// parseFiles parses a batch through a bounded worker pool. Per-file
// failures land in the run state; the returned slice holds only
// successes, sorted by path so downstream index building is
// deterministic.
func (o *Orchestrator) parseFiles(ctx context.Context, contents map[string][]byte, workers int, rs *runState) []*parser.ParsedFile {
	if len(contents) == 0 {
		return nil
	}
	paths := make([]string, 0, len(contents))
	for p := range contents {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	if workers <= 0 {
		workers = o.cfg.Workers
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(paths) {
		workers = len(paths)
	}
	if workers <= 0 {
		workers = 1
	}

	fileChan := make(chan string, parseChannelBuffer)
	resultChan := make(chan parseResult, parseChannelBuffer)

	var wg gosync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for path := range fileChan {
				select {
				case <-ctx.Done():
					return
				default:
				}
				resultChan <- o.parseOne(ctx, path, contents[path])
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	go func() {
		defer close(fileChan)
		for _, p := range paths {
			select {
			case <-ctx.Done():
				return
			case fileChan <- p:
			}
		}
	}()

	parsed := make([]*parser.ParsedFile, 0, len(paths))
	for res := range resultChan {
		if res.err != nil {
			rs.addError(PhaseParse, res.path, res.err)
			continue
		}
		rs.addFile(res.parsed.Language)
		parsed = append(parsed, res.parsed)
	}

	sort.Slice(parsed, func(i, j int) bool { return parsed[i].Path < parsed[j].Path })
	return parsed
}

func (o *Orchestrator) parseOne(ctx context.Context, path string, content []byte) parseResult {
	p, ok := o.parsers.ForPath(path)
	if !ok {
		return parseResult{path: path, err: fmt.Errorf("no parser registered for %s", path)}
	}
	pf, err := p.Parse(ctx, content, path)
	if err != nil {
		return parseResult{path: path, err: err}
	}
	if pf.HasErrors() {
		o.log.Debug("parsed with recoverable errors", "path", path, "errors", len(pf.Errors))
	}
	return parseResult{path: path, parsed: pf}
}
