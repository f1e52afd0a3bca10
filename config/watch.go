// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"bytes"
	"context"
	"io/ioutil"
	"log"
	"path/filepath"

	fsnotify "gopkg.in/fsnotify.v1"
)

// Watch calls onChange with the new configuration every time the file at path
// is modified, until ctx is canceled.
//
// The directory is watched, not the file, since editors usually replace the
// file. Invalid content is logged and skipped.
func Watch(ctx context.Context, path string, onChange func(c *Config)) error {
	path = filepath.Clean(path)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err = watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	var last []byte
	for {
		select {
		case <-ctx.Done():
			return nil
		case err = <-watcher.Errors:
			return err
		case e := <-watcher.Events:
			if filepath.Clean(e.Name) != path || e.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			data, err := ioutil.ReadFile(path)
			if err != nil {
				// Transiently missing while being replaced.
				continue
			}
			// Skip the truncated file seen in the middle of a write.
			if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(data, last) {
				continue
			}
			c, err := Parse(data)
			if err != nil {
				log.Printf("%s: %v", path, err)
				continue
			}
			last = data
			onChange(c)
		}
	}
}
