package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jan21493/tesla-ble-state/pkg/cli"
	"github.com/jan21493/tesla-ble-state/pkg/connector/ble"
	"github.com/jan21493/tesla-ble-state/pkg/protocol"
	"github.com/jan21493/tesla-ble-state/pkg/vehicle"
)

var ErrCommandLineArgs = errors.New("invalid command line arguments")
var ErrUnknownCommand = errors.New("unrecognized command")

const monitorPollTimeout = 5 * time.Second

type Argument struct {
	name string
	help string
}

type Handler func(ctx context.Context, config *cli.Config, car *vehicle.Vehicle, args map[string]string) error

type Command struct {
	help      string
	offline   bool // True if the command works without a vehicle connection
	noTimeout bool // True if the command manages its own request deadlines
	args      []Argument
	optional  []Argument
	handler   Handler
}

func execute(ctx context.Context, config *cli.Config, car *vehicle.Vehicle, args []string) error {
	var err error

	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}
	info, ok := commands[args[0]]
	if !ok {
		return ErrUnknownCommand
	}

	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).", len(args)-1, len(info.args), len(info.optional))
		err = ErrCommandLineArgs
	} else {
		keywords := make(map[string]string)
		for i, argInfo := range info.args {
			keywords[argInfo.name] = args[i+1]
		}
		index := len(info.args) + 1
		for _, argInfo := range info.optional {
			if index >= len(args) {
				break
			}
			keywords[argInfo.name] = args[index]
			index++
		}
		err = info.handler(ctx, config, car, keywords)
	}

	// Print command-specific help
	if errors.Is(err, ErrCommandLineArgs) {
		info.Usage(args[0])
	}
	return err
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" [")
	}
	for _, arg := range c.optional {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" ]")
	}
	fmt.Printf("\n%s\n", c.help)
	maxLength++
	for _, arg := range c.args {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
	for _, arg := range c.optional {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
}

type stateDocument struct {
	RSSI               int16  `json:"rssi"`
	FrontDriverDoor    string `json:"frontDriverDoor"`
	FrontPassengerDoor string `json:"frontPassengerDoor"`
	RearDriverDoor     string `json:"rearDriverDoor"`
	RearPassengerDoor  string `json:"rearPassengerDoor"`
	FrontTrunk         string `json:"frontTrunk"`
	RearTrunk          string `json:"rearTrunk"`
	ChargePort         string `json:"chargePort"`
	LockState          string `json:"lockState"`
	SleepStatus        string `json:"sleepStatus"`
	UserPresence       string `json:"userPresence"`
}

func newStateDocument(car *vehicle.Vehicle, state *vehicle.State) stateDocument {
	return stateDocument{
		RSSI:               car.RSSI(),
		FrontDriverDoor:    state.FrontDriverDoor.String(),
		FrontPassengerDoor: state.FrontPassengerDoor.String(),
		RearDriverDoor:     state.RearDriverDoor.String(),
		RearPassengerDoor:  state.RearPassengerDoor.String(),
		FrontTrunk:         state.FrontTrunk.String(),
		RearTrunk:          state.RearTrunk.String(),
		ChargePort:         state.ChargePort.String(),
		LockState:          state.LockState.String(),
		SleepStatus:        state.SleepStatus.String(),
		UserPresence:       state.UserPresence.String(),
	}
}

func printStateText(car *vehicle.Vehicle, state *vehicle.State) {
	fmt.Printf("%s (RSSI %d dBm)\n", car.LocalName(), car.RSSI())
	fmt.Printf("  front driver door:    %s\n", state.FrontDriverDoor)
	fmt.Printf("  front passenger door: %s\n", state.FrontPassengerDoor)
	fmt.Printf("  rear driver door:     %s\n", state.RearDriverDoor)
	fmt.Printf("  rear passenger door:  %s\n", state.RearPassengerDoor)
	fmt.Printf("  front trunk:          %s\n", state.FrontTrunk)
	fmt.Printf("  rear trunk:           %s\n", state.RearTrunk)
	fmt.Printf("  charge port:          %s\n", state.ChargePort)
	fmt.Printf("  lock state:           %s\n", state.LockState)
	fmt.Printf("  sleep status:         %s\n", state.SleepStatus)
	fmt.Printf("  user presence:        %s\n", state.UserPresence)
}

var commands = map[string]*Command{
	"state": &Command{
		help: "Fetch body controller state. Works over BLE when infotainment is asleep.",
		optional: []Argument{
			Argument{name: "FORMAT", help: "'text' (default) or 'json'."},
		},
		handler: func(ctx context.Context, config *cli.Config, car *vehicle.Vehicle, args map[string]string) error {
			state, err := car.BodyControllerState(ctx)
			if err != nil {
				return err
			}
			if format, ok := args["FORMAT"]; ok && strings.ToLower(format) == "json" {
				jsondata, err := json.Marshal(newStateDocument(car, state))
				if err != nil {
					return err
				}
				fmt.Printf("%s\n", jsondata)
				return nil
			}
			printStateText(car, state)
			return nil
		},
	},
	"doors": &Command{
		help: "Summarize door and trunk closure state in one line.",
		handler: func(ctx context.Context, config *cli.Config, car *vehicle.Vehicle, args map[string]string) error {
			state, err := car.BodyControllerState(ctx)
			if err != nil {
				return err
			}
			switch {
			case state.AllDoorsClosed():
				fmt.Println("all doors closed")
			case state.AnyDoorsOpen():
				fmt.Printf("open: %s\n", strings.Join(state.OpenDoors(), ", "))
			default:
				fmt.Println("door state not fully known")
			}
			return nil
		},
	},
	"locked": &Command{
		help: "Show whether the vehicle is locked.",
		handler: func(ctx context.Context, config *cli.Config, car *vehicle.Vehicle, args map[string]string) error {
			state, err := car.BodyControllerState(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("lock state: %s\n", state.LockState)
			return nil
		},
	},
	"monitor": &Command{
		help:      "Poll body controller state and report changes until interrupted.",
		noTimeout: true,
		optional: []Argument{
			Argument{name: "INTERVAL", help: "Poll interval, e.g. 2s or 500ms (default 2s)."},
		},
		handler: func(ctx context.Context, config *cli.Config, car *vehicle.Vehicle, args map[string]string) error {
			interval := 2 * time.Second
			if raw, ok := args["INTERVAL"]; ok {
				parsed, err := time.ParseDuration(raw)
				if err != nil || parsed <= 0 {
					writeErr("Invalid poll interval: %s", raw)
					return ErrCommandLineArgs
				}
				interval = parsed
			}
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			var previous *vehicle.State
			for {
				pollCtx, cancel := context.WithTimeout(ctx, monitorPollTimeout)
				state, err := car.BodyControllerState(pollCtx)
				cancel()
				if err != nil {
					if protocol.Temporary(err) {
						writeErr("%s poll failed: %s", time.Now().Format("15:04:05"), err)
					} else {
						return err
					}
				} else {
					changes := []vehicle.Change{}
					if previous != nil {
						changes = state.Diff(previous)
					}
					if previous == nil || len(changes) > 0 {
						for _, change := range changes {
							fmt.Printf("%s %s: %s -> %s\n", time.Now().Format("15:04:05"), change.Field, change.Old, change.New)
						}
						if previous == nil {
							printStateText(car, state)
						}
					} else {
						fmt.Printf("%s no change (%s, %s)\n", time.Now().Format("15:04:05"), state.SleepStatus, state.LockState)
					}
					snapshot := *state
					previous = &snapshot
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	},
	"name": &Command{
		help:    "Print the BLE advertisement name for the configured VIN. Does not require a connection.",
		offline: true,
		handler: func(ctx context.Context, config *cli.Config, car *vehicle.Vehicle, args map[string]string) error {
			name, err := ble.VehicleLocalName(config.VIN)
			if err != nil {
				return err
			}
			fmt.Println(name)
			return nil
		},
	},
}
