// Reciper - declarative recipe engine
// Copyright (c) 2026 Dublyo. All rights reserved.
// Licensed under the MIT License. See LICENSE file for details.
//
// This is the main entry point for the reciper CLI tool.
// For usage information, run: reciper --help
package main

import (
	"github.com/dublyo/reciper/internal/clicmd"
)

func main() {
	clicmd.Execute()
}
