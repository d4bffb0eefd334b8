/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// backupStamp formats backup suffixes so lexicographic order is chronological.
const backupStamp = "20060102-150405.000"

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}

// replaceFile writes data next to target and renames it into place. When target already
// exists it is first copied to backupDir as <name>.<stamp>.bak.
func replaceFile(target, backupDir string, data []byte) error {
	if backupDir != "" {
		if _, err := os.Stat(target); err == nil {
			if err := os.MkdirAll(backupDir, 0o755); err != nil {
				return fmt.Errorf("ensure backups dir: %w", err)
			}
			bpath := filepath.Join(backupDir, fmt.Sprintf("%s.%s.bak", filepath.Base(target), time.Now().Format(backupStamp)))
			if err := copyFile(target, bpath); err != nil {
				return fmt.Errorf("backup %s: %w", filepath.Base(target), err)
			}
		}
	}
	dir := filepath.Dir(target)
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(target), os.Getpid(), rand.Int()))
	if err := writeFileSync(temp, data); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("write temp file: %w", err)
	}
	// Windows refuses to rename over an existing file.
	if _, err := os.Stat(target); err == nil {
		_ = os.Remove(target)
	}
	if err := os.Rename(temp, target); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace %s: %w", filepath.Base(target), err)
	}
	return nil
}

// backupsOf lists the backups of the file called name, oldest first.
func backupsOf(backupDir, name string) ([]string, error) {
	ents, err := os.ReadDir(backupDir)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	var out []string
	for _, e := range ents {
		n := e.Name()
		if strings.HasPrefix(n, name+".") && strings.HasSuffix(n, ".bak") {
			out = append(out, filepath.Join(backupDir, n))
		}
	}
	sort.Strings(out)
	return out, nil
}

// readWithFallback reads path; when that fails or check rejects the content, the newest
// backup that passes check is returned instead.
func readWithFallback(path, backupDir string, check func([]byte) error) ([]byte, bool, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		if err = check(b); err == nil {
			return b, false, nil
		}
	}
	baks, berr := backupsOf(backupDir, filepath.Base(path))
	if berr != nil {
		return nil, false, fmt.Errorf("%w; backup attempt: %v", err, berr)
	}
	for i := len(baks) - 1; i >= 0; i-- {
		bb, rerr := os.ReadFile(baks[i])
		if rerr != nil {
			continue
		}
		if check(bb) == nil {
			return bb, true, nil
		}
	}
	return nil, false, fmt.Errorf("%w; backup attempt: no usable backups", err)
}
