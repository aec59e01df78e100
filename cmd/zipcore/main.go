// Command zipcore is a thin exerciser for the archive package: create,
// list, extract, check and fix subcommands over a real PKZIP archive on
// the local filesystem. It is not a product surface - a place to poke
// the library from a shell, nothing more.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/martin-sucha/zipcore/archive"
	"github.com/martin-sucha/zipcore/cipher"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	var err error
	switch os.Args[1] {
	case "create":
		err = runCreate(os.Args[2:])
	case "list":
		err = runList(os.Args[2:])
	case "extract":
		err = runExtract(os.Args[2:])
	case "check":
		err = runCheck(os.Args[2:])
	case "fix":
		err = runFix(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: zipcore <create|list|extract|check|fix> ...")
	os.Exit(2)
}

func runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	password := fs.String("password", "", "encrypt every added entry with this password")
	maxSegment := fs.Int64("max-segment-size", 0, "split output into segments of this many bytes (0 = single file)")
	fs.Parse(args)
	rest := fs.Args()
	if len(rest) < 2 {
		return fmt.Errorf("usage: zipcore create OUT.zip FILE...")
	}
	out := rest[0]

	var opts []archive.Option
	if *password != "" {
		opts = append(opts, archive.WithPassword(*password), archive.WithDefaultCipher(cipher.WinZipAES256))
	}
	if *maxSegment > 0 {
		opts = append(opts, archive.WithMaxSegmentSize(*maxSegment))
	}
	a, err := archive.New(opts...)
	if err != nil {
		return err
	}
	for _, path := range rest[1:] {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := a.AddDirectory(path, filepath.Base(path)); err != nil {
				return err
			}
			continue
		}
		if _, err := a.AddFile(path, ""); err != nil {
			return err
		}
	}
	return a.Save(out)
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	fs.Parse(args)
	rest := fs.Args()
	if len(rest) != 1 {
		return fmt.Errorf("usage: zipcore list IN.zip")
	}
	a, err := archive.New()
	if err != nil {
		return err
	}
	if err := a.Read(rest[0]); err != nil {
		return err
	}
	for _, e := range a.Entries() {
		st := e.State()
		fmt.Printf("%10d %10d  %s\n", st.CompressedSize, st.UncompressedSize, e.Name)
	}
	return nil
}

func runExtract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	password := fs.String("password", "", "password for encrypted entries")
	dir := fs.String("dir", ".", "destination directory")
	fs.Parse(args)
	rest := fs.Args()
	if len(rest) != 1 {
		return fmt.Errorf("usage: zipcore extract IN.zip")
	}
	a, err := archive.New(archive.WithPassword(*password))
	if err != nil {
		return err
	}
	if err := a.Read(rest[0]); err != nil {
		return err
	}
	for _, e := range a.Entries() {
		if e.IsDir() {
			continue
		}
		target := filepath.Join(*dir, filepath.FromSlash(e.Name))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := a.ExtractToFile(e, target); err != nil {
			return fmt.Errorf("%s: %w", e.Name, err)
		}
	}
	return nil
}

func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	fs.Parse(args)
	rest := fs.Args()
	if len(rest) != 1 {
		return fmt.Errorf("usage: zipcore check IN.zip")
	}
	a, err := archive.New()
	if err != nil {
		return err
	}
	status, err := archive.Check(a.FS(), rest[0])
	if err != nil {
		return err
	}
	fmt.Println(status)
	return nil
}

func runFix(args []string) error {
	fs := flag.NewFlagSet("fix", flag.ExitOnError)
	fs.Parse(args)
	rest := fs.Args()
	if len(rest) != 1 {
		return fmt.Errorf("usage: zipcore fix IN.zip")
	}
	a, err := archive.New()
	if err != nil {
		return err
	}
	return a.FixDirectory(rest[0])
}
