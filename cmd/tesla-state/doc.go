/*
tesla-state provides a command-line interface for reading a Tesla vehicle's body
controller state over Bluetooth Low Energy (BLE). The body controller answers
status requests without key pairing, so the tool reports door, trunk, charge
port, lock, sleep, and occupant presence state with nothing but the VIN.

The vehicle is discovered by its BLE advertisement name SxxxxxxxxxxxxxxxxC,
where xxxxxxxxxxxxxxxx is a 16-digit hexadecimal value calculated from the
first 8 bytes of the SHA1 checksum of the VIN.

Run with no COMMAND for an interactive shell, or see 'tesla-state help' for the
available commands.
*/
package main
