package flags

import (
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// ServerFlags holds the listener and HTTP surface settings of the chat server.
type ServerFlags struct {
	ListenAddr     string
	AllowedOrigins []string
	UploadDir      string
}

func NewServerFlags() *ServerFlags {
	f := &ServerFlags{
		ListenAddr: ":8080",
		UploadDir:  "./uploads",
	}
	if addr := os.Getenv("SCENYX_LISTEN"); addr != "" {
		f.ListenAddr = addr
	}
	if origins := os.Getenv("SCENYX_ALLOWED_ORIGINS"); origins != "" {
		f.AllowedOrigins = strings.Split(origins, ",")
	}
	if dir := os.Getenv("SCENYX_UPLOAD_DIR"); dir != "" {
		f.UploadDir = dir
	}
	return f
}

func (f *ServerFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.ListenAddr, "listen", f.ListenAddr, "The address to serve the chat API and socket on")
	fs.StringSliceVar(&f.AllowedOrigins, "allowed-origins", f.AllowedOrigins, "Browser origins allowed to call the API (default any)")
	fs.StringVar(&f.UploadDir, "upload-dir", f.UploadDir, "Directory attachments are stored in")
}
