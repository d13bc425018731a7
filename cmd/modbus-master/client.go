// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"fmt"
	"time"

	rtuovertcp "github.com/ffutop/modbus-node/transport/rtu-over-tcp"
	"github.com/goburrow/modbus"
)

// Connection selects the node to talk to.
type Connection struct {
	Device   string        `short:"d" long:"device" default:"/dev/ttyUSB0" env:"MODBUS_DEVICE" description:"Serial device"`
	TCP      string        `long:"tcp" env:"MODBUS_TCP" description:"Reach the node over RTU over TCP at host:port instead of the serial device"`
	Baud     int           `short:"b" long:"baud" default:"19200" description:"Serial baud rate"`
	Parity   string        `short:"p" long:"parity" default:"E" choice:"N" choice:"E" choice:"O" description:"Serial parity"`
	StopBits int           `short:"s" long:"stop-bits" default:"1" description:"Serial stop bits"`
	Slave    uint8         `short:"u" long:"slave" default:"1" env:"MODBUS_SLAVE" description:"Slave address"`
	Timeout  time.Duration `short:"t" long:"timeout" default:"1s" description:"Response timeout"`
}

// master is an open connection to a node.
type master struct {
	client modbus.Client
	close  func() error
}

func (c *Connection) open() (*master, error) {
	if c.TCP != "" {
		handler := modbus.NewRTUClientHandler("")
		handler.SlaveId = c.Slave
		transporter := rtuovertcp.NewClient(c.TCP)
		transporter.Timeout = c.Timeout
		if err := transporter.Connect(); err != nil {
			return nil, fmt.Errorf("connect to %s: %w", c.TCP, err)
		}
		return &master{client: modbus.NewClient2(handler, transporter), close: transporter.Close}, nil
	}

	handler := modbus.NewRTUClientHandler(c.Device)
	handler.BaudRate = c.Baud
	handler.DataBits = 8
	handler.Parity = c.Parity
	handler.StopBits = c.StopBits
	handler.SlaveId = c.Slave
	handler.Timeout = c.Timeout
	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("open %s: %w", c.Device, err)
	}
	return &master{client: modbus.NewClient(handler), close: handler.Close}, nil
}

// run opens the connection, runs fn and closes the connection again.
func (c *Connection) run(fn func(m *master) error) error {
	m, err := c.open()
	if err != nil {
		return err
	}
	defer m.close()
	return fn(m)
}
