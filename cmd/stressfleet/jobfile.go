package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// spliceJobFile expands a --job FILE reference into the option stream. A
// job file holds one option per line, without the leading dashes, plus an
// optional "run sequential|parallel|permute" directive; '#' starts a
// comment. Options from the file come first so the command line overrides
// them.
func spliceJobFile(args []string) ([]string, error) {
	path := ""
	for i := 0; i < len(args); i++ {
		if args[i] == "--job" && i+1 < len(args) {
			path = args[i+1]
			break
		}
		if v, found := strings.CutPrefix(args[i], "--job="); found {
			path = v
			break
		}
	}
	if path == "" {
		return args, nil
	}

	jobArgs, err := parseJobFile(path)
	if err != nil {
		return nil, err
	}
	return append(jobArgs, args...), nil
}

func parseJobFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("job file: %w", err)
	}
	defer f.Close()

	var out []string
	lineNo := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		opt := fields[0]
		if opt == "run" {
			if len(fields) != 2 {
				return nil, fmt.Errorf("job file %s:%d: run needs one of sequential, parallel, permute", path, lineNo)
			}
			switch fields[1] {
			case "sequential":
				out = append(out, "--sequential", "0")
			case "parallel":
				out = append(out, "--all", "0")
			case "permute":
				out = append(out, "--permute", "0")
			default:
				return nil, fmt.Errorf("job file %s:%d: unknown run mode %q", path, lineNo, fields[1])
			}
			continue
		}

		if strings.HasPrefix(opt, "-") {
			return nil, fmt.Errorf("job file %s:%d: options are written without dashes", path, lineNo)
		}
		out = append(out, "--"+opt)
		out = append(out, fields[1:]...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("job file: %w", err)
	}
	return out, nil
}
