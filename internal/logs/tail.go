package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// TailOptions controls one Tail call. A negative Offset means "start from the
// end": return the last Limit lines and the offset following them. Follow
// with a positive Wait blocks until new lines appear or the wait elapses.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
}

// TailResult carries the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

const pollInterval = 250 * time.Millisecond

// Tail reads log lines from path according to opts. A missing file is not an
// error; the result is empty with offset zero so callers can retry once the
// daemon has written something. Offsets count bytes of complete lines only:
// a final line the writer has not finished stays unread until it gains its
// newline, so follow never emits a truncated record.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	result := TailResult{Offset: opts.Offset}
	if opts.Wait < 0 {
		opts.Wait = 0
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		result.Offset = 0
	case err != nil:
		return result, fmt.Errorf("stat log file: %w", err)
	case info.IsDir():
		return result, fmt.Errorf("log path %q is a directory", path)
	case opts.Offset < 0:
		lines, next, err := lastLines(path, opts.Limit)
		if err != nil {
			return result, err
		}
		result.Lines = lines
		result.Offset = next
	default:
		offset := opts.Offset
		if offset > info.Size() {
			// The file was rotated or truncated; restart from the end.
			offset = info.Size()
		}
		lines, next, err := linesFrom(path, offset)
		if err != nil {
			return result, err
		}
		result.Lines = lines
		result.Offset = next
	}

	if opts.Follow && opts.Wait > 0 && len(result.Lines) == 0 {
		return awaitLines(ctx, path, result.Offset, opts.Wait)
	}
	return result, nil
}

// lastLines returns the final limit complete lines of the file and the offset
// just past them. Lines are buffered in a fixed ring so huge files stay cheap
// to tail.
func lastLines(path string, limit int) ([]string, int64, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var ring []string
	if limit > 0 {
		ring = make([]string, limit)
	}
	reader := bufio.NewReaderSize(file, 64*1024)
	total := 0
	var pos int64
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			if limit > 0 {
				ring[total%limit] = strings.TrimSuffix(line, "\n")
			}
			total++
			pos += int64(len(line))
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}

	count := total
	if count > limit {
		count = limit
	}
	if count <= 0 {
		return nil, pos, nil
	}
	lines := make([]string, count)
	for i := 0; i < count; i++ {
		lines[i] = ring[(total-count+i)%limit]
	}
	return lines, pos, nil
}

// linesFrom reads every complete line starting at offset and returns the
// offset just past the last one.
func linesFrom(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	pos := offset
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			lines = append(lines, strings.TrimSuffix(line, "\n"))
			pos += int64(len(line))
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	return lines, pos, nil
}

// awaitLines polls for new lines past offset until some arrive, the wait
// elapses, or ctx is done.
func awaitLines(ctx context.Context, path string, offset int64, wait time.Duration) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	result := TailResult{Offset: offset}
	for {
		lines, next, err := linesFrom(path, result.Offset)
		if err != nil {
			return result, err
		}
		result.Offset = next
		if len(lines) > 0 {
			result.Lines = lines
			return result, nil
		}
		if !time.Now().Before(deadline) {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}
