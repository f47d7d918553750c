// Command serialmon bridges a running kernel's COM1 UART (see driver/uart,
// §6 Serial logging) to the operator's terminal: it puts the host terminal
// into raw mode, then copies bytes in both directions between stdin/stdout
// and a TCP socket (the address QEMU's `-serial tcp:host:port` exposes).
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4444", "TCP address of the kernel's serial port (QEMU -serial tcp:...)")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "serialmon: dialing %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fmt.Fprintln(os.Stderr, "serialmon: stdin is not a terminal, copying without raw mode")
		bridge(conn)
		return
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "serialmon: entering raw mode: %v\n", err)
		os.Exit(1)
	}
	defer term.Restore(fd, saved)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM)
	go func() {
		<-sigCh
		term.Restore(fd, saved)
		os.Exit(0)
	}()

	bridge(conn)
}

// bridge copies stdin -> conn and conn -> stdout concurrently until either
// direction hits EOF or an error.
func bridge(conn net.Conn) {
	done := make(chan struct{}, 2)
	go func() {
		io.Copy(conn, os.Stdin)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(os.Stdout, conn)
		done <- struct{}{}
	}()
	<-done
}
