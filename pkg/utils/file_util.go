// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

func ResolvePath(path string) string {
	if !strings.Contains(path, "~") {
		return os.ExpandEnv(path)
	}

	if path == "~" {
		if usr, err := user.Current(); err == nil {
			path = usr.HomeDir
		}
	} else if strings.HasPrefix(path, "~/") {
		if usr, err := user.Current(); err == nil {
			path = filepath.Join(usr.HomeDir, path[2:])
		}
	}

	return os.ExpandEnv(path)
}
