package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/jan21493/tesla-ble-state/internal/log"
	"github.com/jan21493/tesla-ble-state/pkg/cli"
	"github.com/jan21493/tesla-ble-state/pkg/protocol"
	"github.com/jan21493/tesla-ble-state/pkg/vehicle"
)

var version = "undefined"
var today = "undefined"

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usage = `
 * Reads body controller state over BLE. No key pairing or internet access required.
 * The vehicle is identified by VIN (-vin flag, $TESLA_VIN, or the config file).`

func Usage() {
	fmt.Printf("%s version %s (built %s)\n\n", os.Args[0], version, today)
	fmt.Printf("Usage: %s [OPTION...] [COMMAND [ARG...]]\n", os.Args[0])
	fmt.Printf("\nRun %s help COMMAND for more information. Valid COMMANDs are listed below.", os.Args[0])
	fmt.Println("")
	fmt.Println(usage)
	fmt.Println("")

	fmt.Printf("Available OPTIONs:\n")
	flag.PrintDefaults()
	fmt.Println("")
	fmt.Printf("Available COMMANDs:\n")
	maxLength := 0
	var labels []string
	for command := range commands {
		labels = append(labels, command)
		if len(command) > maxLength {
			maxLength = len(command)
		}
	}
	sort.Strings(labels)
	for _, command := range labels {
		info := commands[command]
		fmt.Printf("  %s%s %s\n", command, strings.Repeat(" ", maxLength-len(command)), info.help)
	}
}

func runCommand(config *cli.Config, car *vehicle.Vehicle, args []string, timeout time.Duration) int {
	ctx := context.Background()
	if info, ok := commands[args[0]]; !ok || !info.noTimeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := execute(ctx, config, car, args); err != nil {
		if protocol.MayHaveSucceeded(err) {
			writeErr("Couldn't verify success: %s", err)
		} else {
			writeErr("Failed to execute command: %s", err)
		}
		return 1
	}
	return 0
}

func runInteractiveShell(config *cli.Config, car *vehicle.Vehicle, timeout time.Duration) int {
	scanner := bufio.NewScanner(os.Stdin)
	for fmt.Printf("> "); scanner.Scan(); fmt.Printf("> ") {
		args, err := shlex.Split(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			return 0
		}
		if err != nil {
			writeErr("Invalid command: %s", err)
			continue
		}
		runCommand(config, car, args, timeout)
	}
	if err := scanner.Err(); err != nil {
		writeErr("Error reading command: %s", err)
		return 1
	}
	return 0
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "tesla-state", "config.yml")
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	configPath := os.Getenv("TESLA_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	config := cli.NewConfig()
	if configPath != "" {
		if err := config.Load(configPath); err != nil {
			writeErr("Error loading configuration: %s", err)
			return
		}
	}

	flag.Usage = Usage
	config.RegisterCommandLineFlags()
	flag.Parse()
	config.ReadFromEnvironment()

	if config.Debug {
		log.SetLevel(log.LevelDebug)
		log.Debug("%s version %s (built %s)", os.Args[0], version, today)
	}

	args := flag.Args()
	if len(args) > 0 {
		if args[0] == "help" || args[0] == "h" {
			if len(args) == 1 {
				Usage()
				status = 0
				return
			}
			info, ok := commands[args[1]]
			if !ok {
				writeErr("Unrecognized command: %s", args[1])
				return
			}
			info.Usage(args[1])
			status = 0
			return
		}
		if info, ok := commands[args[0]]; ok && info.offline {
			status = runCommand(config, nil, args, config.CommandTimeout.Duration)
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout.Duration)
	defer cancel()

	car, err := config.Connect(ctx)
	if err != nil {
		writeErr("Failed to connect to vehicle: %s", err)
		if strings.Contains(err.Error(), "operation not permitted") {
			// The goble package calls HCIDEVDOWN on the BLE device, presumably as a
			// heavy-handed way of dealing with devices that are in a bad state.
			writeErr("\nTry again after granting this application CAP_NET_ADMIN:\n\n\tsudo setcap 'cap_net_admin=eip' \"$(which %s)\"\n", os.Args[0])
		}
		return
	}
	defer config.Close()
	defer car.Disconnect()
	log.Debug("Connected to %s (RSSI %d dBm) using block length %d", car.LocalName(), car.RSSI(), car.BlockLength())

	if len(args) > 0 {
		status = runCommand(config, car, args, config.CommandTimeout.Duration)
	} else {
		status = runInteractiveShell(config, car, config.CommandTimeout.Duration)
	}
}
