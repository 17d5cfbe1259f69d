// Command bodycat consumes a file or stdin as one of the body types and
// prints the result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bodyconsumer/internal/consume"
	"bodyconsumer/internal/service"
	"bodyconsumer/internal/storage"
)

func main() {
	os.Exit(run())
}

// run returns the exit code so deferred cleanup, including removal of
// spilled temp files, always happens.
func run() int {
	typeName := flag.String("type", "text", "body type: arraybuffer, bytes, blob, formdata, json or text")
	contentType := flag.String("content-type", "", "MIME type of the body")
	path := flag.String("file", "", "read the body from this file instead of stdin")
	verbose := flag.Bool("v", false, "log consumption details to stderr")
	flag.Parse()

	log.SetFlags(0)
	log.SetPrefix("bodycat: ")

	typ, err := consume.ParseType(*typeName)
	if err != nil {
		log.Print(err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := service.Options{
		Storage: storage.NewMemoryStorage(8*1024*1024, os.TempDir()),
	}
	if *verbose {
		opts.Logger = log.New(os.Stderr, "bodycat: ", log.Lmicroseconds)
	}
	svc := service.New(opts)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := svc.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	in := service.ConsumeInput{Type: typ, ContentType: *contentType}
	if *path != "" {
		f, err := os.Open(*path)
		if err != nil {
			log.Print(err)
			return 1
		}
		in.Body = f
		in.LocalPath = *path
	} else {
		in.Body = os.Stdin
	}

	value, err := svc.ConsumeBody(ctx, in)
	if err != nil {
		log.Print(err)
		return 1
	}
	if err := printValue(os.Stdout, value); err != nil {
		log.Print(err)
		return 1
	}
	return 0
}

func printValue(w io.Writer, v consume.Value) error {
	switch v.Type {
	case consume.TypeRawBytes, consume.TypeBytes:
		_, err := w.Write(v.Bytes)
		return err
	case consume.TypeText:
		_, err := io.WriteString(w, v.Text)
		return err
	case consume.TypeJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v.JSON)
	case consume.TypeFormData:
		if v.Form == nil {
			return nil
		}
		for _, e := range v.Form.Entries {
			if e.File != nil {
				fmt.Fprintf(w, "%s: file %q (%s, %d bytes)\n", e.Name, e.File.Filename, e.File.ContentType, len(e.File.Data))
				continue
			}
			fmt.Fprintf(w, "%s=%s\n", e.Name, e.Value)
		}
		return nil
	case consume.TypeBlob:
		_, err := fmt.Fprintf(w, "uri=%s size=%d type=%q digest=%s\n", v.Blob.URI, v.Blob.Size, v.Blob.MimeType, v.Blob.Digest)
		return err
	default:
		return fmt.Errorf("unexpected body type %s", v.Type)
	}
}
