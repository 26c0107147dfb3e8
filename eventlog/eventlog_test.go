// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package eventlog

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordAndRotate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	l, err := Open(path, 200)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, l.Record(Fault, "camera read failed", "camera", "top"))
	}
	require.NoError(t, l.Close())

	_, err = os.Stat(path + ".1")
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	scanner := bufio.NewScanner(f)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	require.Greater(t, lines, 0)
}

func TestRecordWithoutFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	l, err := Open(path, 0)
	require.NoError(t, err)
	require.NoError(t, l.Record(Startup, "service starting"))
	require.NoError(t, l.Close())
}
