// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Fringe - FPS3010 Telegram Protocol Client
//
// A CLI tool for reading positions from FPS3010 interferometric
// displacement sensors and decoding their telegram stream in
// human-readable format.

package main

import (
	"os"

	"github.com/Thermoquad/fringe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
