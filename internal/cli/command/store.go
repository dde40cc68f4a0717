package command

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/digitalfortress-tech/localstorage-slim/ls"
)

// SetCommand returns the set command.
func SetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Store a value under a key",
		ArgsUsage: "<key> <value>",
		Description: `VALUE is parsed as JSON when possible and stored as a plain string
otherwise. Use --string to always store it as a string.`,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "Expire the entry after this duration (0 stores without expiry)",
			},
			&cli.BoolFlag{
				Name:  "encrypt",
				Usage: "Pass the value through the codec",
			},
			&cli.StringFlag{
				Name:  "secret",
				Usage: "Secret for the codec",
			},
			&cli.BoolFlag{
				Name:  "string",
				Usage: "Store VALUE as a string without parsing it",
			},
		},
		Action: runSet,
	}
}

func runSet(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: lsctl set <key> <value>", 1)
	}
	store := GetStore(c)
	if store == nil {
		return fmt.Errorf("store not initialized")
	}

	key := c.Args().Get(0)
	value := parseValue(c.Args().Get(1), c.Bool("string"))

	return store.Set(c.Context, key, value, callOptions(c)...)
}

// GetCommand returns the get command.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print the value stored under a key as JSON",
		ArgsUsage: "<key>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "decrypt",
				Usage: "Pass the stored value through the codec",
			},
			&cli.StringFlag{
				Name:  "secret",
				Usage: "Secret for the codec",
			},
		},
		Action: runGet,
	}
}

func runGet(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: lsctl get <key>", 1)
	}
	store := GetStore(c)
	if store == nil {
		return fmt.Errorf("store not initialized")
	}

	value := store.Get(c.Context, c.Args().First(), callOptions(c)...)
	return printJSON(c.App.Writer, value)
}

// RemoveCommand returns the remove command.
func RemoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Aliases:   []string{"rm"},
		Usage:     "Remove one or more keys",
		ArgsUsage: "<key>...",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("usage: lsctl remove <key>...", 1)
			}
			store := GetStore(c)
			if store == nil {
				return fmt.Errorf("store not initialized")
			}
			for _, key := range c.Args().Slice() {
				if err := store.Remove(c.Context, key); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// ClearCommand returns the clear command.
func ClearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Remove every entry in the namespace",
		Action: func(c *cli.Context) error {
			store := GetStore(c)
			if store == nil {
				return fmt.Errorf("store not initialized")
			}
			return store.Clear(c.Context)
		},
	}
}

// FlushCommand returns the flush command.
func FlushCommand() *cli.Command {
	return &cli.Command{
		Name:  "flush",
		Usage: "Remove expired entries",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Remove every entry that carries an expiry",
			},
		},
		Action: func(c *cli.Context) error {
			store := GetStore(c)
			if store == nil {
				return fmt.Errorf("store not initialized")
			}
			return store.Flush(c.Context, c.Bool("force"))
		},
	}
}

// KeysCommand returns the keys command.
func KeysCommand() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "List stored keys",
		Action: func(c *cli.Context) error {
			store := GetStore(c)
			if store == nil {
				return fmt.Errorf("store not initialized")
			}
			keys, err := store.Keys(c.Context)
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Fprintln(c.App.Writer, key)
			}
			return nil
		},
	}
}

// callOptions maps command flags onto per-call store options.
func callOptions(c *cli.Context) []ls.Option {
	var opts []ls.Option
	if c.IsSet("ttl") {
		opts = append(opts, ls.TTL(c.Duration("ttl")))
	}
	if c.IsSet("encrypt") {
		opts = append(opts, ls.Encrypt(c.Bool("encrypt")))
	}
	if c.IsSet("decrypt") {
		opts = append(opts, ls.Decrypt(c.Bool("decrypt")))
	}
	if c.IsSet("secret") {
		opts = append(opts, ls.Secret(c.String("secret")))
	}
	return opts
}

// parseValue decodes arg as JSON, falling back to the literal string.
func parseValue(arg string, literal bool) any {
	if literal {
		return arg
	}
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return arg
	}
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
