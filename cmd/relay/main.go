package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"relay/internal/client"
	"relay/internal/server/control"
)

const usage = `usage: relay <command> [flags]

commands:
  upload [-server URL] [-d description] [-p password] [-e hours] <paths...>
  list   [-server URL]
  shutdown [-control FILE]   keep the server from starting
  resume   [-control FILE]   clear the shutdown flag
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "upload":
		err = runUpload(ctx, args)
	case "list":
		err = runList(ctx, args)
	case "shutdown", "resume":
		err = runControl(cmd, args)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serverFlag(fs *flag.FlagSet) *string {
	def := os.Getenv("RELAY_SERVER")
	if def == "" {
		def = "http://localhost:8080"
	}
	return fs.String("server", def, "relay server base URL")
}

func runUpload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	server := serverFlag(fs)
	description := fs.String("d", "", "description shown in the listing")
	password := fs.String("p", "", "password required to download")
	hours := fs.Int("e", 0, "hours until expiry (server default when 0)")
	fs.Parse(args)

	paths, err := client.ParseArgs(fs.Args())
	if err != nil {
		return err
	}
	src, err := client.Prepare(paths, time.Now())
	if err != nil {
		return err
	}
	if src.Size < 0 {
		fmt.Printf("Bundling %d path(s) into %s\n", len(paths), src.Name)
	}

	res, err := client.New(*server, nil).Upload(ctx, src, client.UploadOptions{
		Description: *description,
		Password:    *password,
		Expiration:  *hours,
	})
	if err != nil {
		return err
	}

	fmt.Printf("✓ Uploaded %s (%d bytes)\n", res.DisplayName, res.Size)
	fmt.Printf("  Link:    %s\n", res.DownloadURL)
	fmt.Printf("  Expires: %s\n", res.ExpiresAt.Local().Format("2006-01-02 15:04"))
	return nil
}

func runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	server := serverFlag(fs)
	fs.Parse(args)

	records, err := client.New(*server, nil).List(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No files.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tUPLOADED\tREMAINING\tLOCKED\tKEY")
	for _, r := range records {
		remaining := "-"
		if r.RemainingTime != nil {
			remaining = *r.RemainingTime
		}
		locked := ""
		if r.HasPassword {
			locked = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Name, r.FormattedSize, r.UploadTime, remaining, locked, r.StorageKey)
	}
	return tw.Flush()
}

func runControl(cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	def := os.Getenv("CONTROL_FILE")
	if def == "" {
		def = "./config.json"
	}
	path := fs.String("control", def, "server control file")
	fs.Parse(args)

	f := control.NewFile(*path)
	if cmd == "shutdown" {
		if err := f.RequestShutdown(); err != nil {
			return err
		}
		fmt.Printf("Shutdown requested in %s; the server will exit on its next start.\n", f.Path())
		return nil
	}
	if err := f.ClearShutdown(); err != nil {
		return err
	}
	fmt.Printf("Shutdown flag cleared in %s.\n", f.Path())
	return nil
}
