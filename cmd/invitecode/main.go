// Command invitecode manages the global beta invite code. The store only
// ever holds the hash; `rotate` prints the plaintext exactly once.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"strings"

	"linguatutor/internal/config"
	"linguatutor/internal/util"
	"linguatutor/pkg/auth"
	"linguatutor/pkg/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		util.Fatal("failed to load config", "err", err)
	}
	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		util.Fatal("failed to init store", "err", err)
	}

	switch os.Args[1] {
	case "set":
		fs := flag.NewFlagSet("set", flag.ExitOnError)
		code := fs.String("code", "", "invite code to set")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*code) == "" {
			util.Fatal("set requires --code")
		}
		if err := st.SetSetting(store.SettingBetaInviteHash, auth.HashInviteCode(*code)); err != nil {
			util.Fatal("failed to store invite hash", "err", err)
		}
		fmt.Println("Invite code updated.")
	case "rotate":
		plain, err := newInviteCode()
		if err != nil {
			util.Fatal("failed to generate code", "err", err)
		}
		if err := st.SetSetting(store.SettingBetaInviteHash, auth.HashInviteCode(plain)); err != nil {
			util.Fatal("failed to store invite hash", "err", err)
		}
		fmt.Println("New invite code generated (store this now; it will not be shown again):")
		fmt.Println(plain)
	case "status":
		hash, ok, err := st.GetSetting(store.SettingBetaInviteHash)
		if err != nil {
			util.Fatal("failed to read setting", "err", err)
		}
		if !ok || hash == "" {
			fmt.Println("No invite code configured; registration is closed.")
			return
		}
		fmt.Println("Invite code configured.")
	default:
		usage()
		os.Exit(2)
	}
}

func newInviteCode() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: invitecode <set --code CODE | rotate | status>")
}
