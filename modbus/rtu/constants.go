// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

const (
	MinSize = 4
	MaxSize = 256

	ExceptionSize = 5

	// ReadRequestSize is also the size of a write single register request and its echo.
	ReadRequestSize = 8
	// WriteMultipleHeaderSize covers address, function, start, quantity and byte count.
	WriteMultipleHeaderSize = 7
	// WriteMultipleResponseSize is address, function, start, quantity and CRC.
	WriteMultipleResponseSize = 8
)
