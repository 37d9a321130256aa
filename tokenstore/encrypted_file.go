package tokenstore

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pardot/oauthclient"
	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/term"
)

const (
	encryptedFileKeySize   = 32
	encryptedFileNonceSize = 24
	encryptedFileSaltSize  = 8
)

// EncryptedFileStore persists tokens in passphrase-encrypted files, one per
// key. Suitable for CLI programs that want credentials to survive restarts
// without a system keychain.
type EncryptedFileStore struct {
	// Dir is the path where encrypted token files will be stored.
	// If empty, defaults to ~/.oauth-tokens/
	Dir string

	// PassphrasePromptFunc is a function that prompts the user to enter a
	// passphrase used to encrypt and decrypt a file.
	PassphrasePromptFunc
}

var _ Store = (*EncryptedFileStore)(nil)

func (e *EncryptedFileStore) Get(_ context.Context, key string) (*oauthclient.Token, error) {
	dir, err := e.resolveDir()
	if err != nil {
		return nil, err
	}

	filename := path.Join(dir, e.filename(key))
	contents, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to read file %q", filename)
	}

	if len(contents) < encryptedFileNonceSize+encryptedFileSaltSize {
		return nil, fmt.Errorf("file %q too short to contain nonce and salt", filename)
	}

	// File structure is:
	// 24 bytes: nonce
	// 8 bytes: salt
	// N bytes: ciphertext
	var nonce [encryptedFileNonceSize]byte
	copy(nonce[:], contents)
	var salt [encryptedFileSaltSize]byte
	copy(salt[:], contents[encryptedFileNonceSize:])
	ciphertext := contents[encryptedFileNonceSize+encryptedFileSaltSize:]

	passphrase, err := e.promptFuncOrDefault()(fmt.Sprintf("Enter passphrase for decrypting %s token", key))
	if err != nil {
		return nil, err
	}

	sbkey, err := e.passphraseToKey(passphrase, salt)
	if err != nil {
		return nil, err
	}

	plaintext, ok := secretbox.Open(nil, ciphertext, &nonce, &sbkey)
	if !ok {
		// wrong passphrase or corrupt file, treat as a miss
		return nil, nil
	}

	token := new(oauthclient.Token)
	if err := json.Unmarshal(plaintext, token); err != nil {
		return nil, errors.Wrap(err, "failed to decode token")
	}

	return token, nil
}

func (e *EncryptedFileStore) Set(_ context.Context, key string, token *oauthclient.Token) error {
	dir, err := e.resolveDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrap(err, "failed to create directory")
	}

	var nonce [encryptedFileNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return errors.Wrap(err, "failed to generate nonce")
	}
	var salt [encryptedFileSaltSize]byte
	if _, err := io.ReadFull(rand.Reader, salt[:]); err != nil {
		return errors.Wrap(err, "failed to generate salt")
	}

	passphrase, err := e.promptFuncOrDefault()(fmt.Sprintf("Enter passphrase for encrypting %s token", key))
	if err != nil {
		return err
	}

	sbkey, err := e.passphraseToKey(passphrase, salt)
	if err != nil {
		return err
	}

	plaintext, err := json.Marshal(token)
	if err != nil {
		return errors.Wrap(err, "failed to encode token")
	}

	ciphertext := secretbox.Seal(nil, plaintext, &nonce, &sbkey)

	// Writes to a bytes.Buffer always succeed (or panic)
	buf := new(bytes.Buffer)
	_, _ = buf.Write(nonce[:])
	_, _ = buf.Write(salt[:])
	_, _ = buf.Write(ciphertext)

	filename := path.Join(dir, e.filename(key))
	if err := os.WriteFile(filename, buf.Bytes(), 0600); err != nil {
		return errors.Wrapf(err, "failed to write file %q", filename)
	}

	return nil
}

func (e *EncryptedFileStore) Delete(_ context.Context, key string) error {
	dir, err := e.resolveDir()
	if err != nil {
		return err
	}

	err = os.Remove(path.Join(dir, e.filename(key)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (e *EncryptedFileStore) Available() bool {
	return true
}

func (e *EncryptedFileStore) resolveDir() (string, error) {
	dir := e.Dir
	if dir == "" {
		dir = "~/.oauth-tokens"
	}

	if strings.HasPrefix(dir, "~/") {
		expanded, err := homedir.Expand(dir)
		if err != nil {
			return "", errors.Wrap(err, "unable to determine home directory")
		}
		dir = expanded
	}

	return dir, nil
}

func (e *EncryptedFileStore) filename(key string) string {
	// A hash is used to avoid special characters in filenames
	hsh := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hsh[:]) + ".enc"
}

func (e *EncryptedFileStore) passphraseToKey(passphrase string, salt [encryptedFileSaltSize]byte) ([encryptedFileKeySize]byte, error) {
	var akey [encryptedFileKeySize]byte

	key, err := scrypt.Key([]byte(passphrase), salt[:], 1<<15, 8, 1, encryptedFileKeySize)
	if err != nil {
		return akey, err
	}

	copy(akey[:], key)
	return akey, nil
}

func (e *EncryptedFileStore) promptFuncOrDefault() PassphrasePromptFunc {
	if e.PassphrasePromptFunc != nil {
		return e.PassphrasePromptFunc
	}

	return func(prompt string) (string, error) {
		fmt.Fprintf(os.Stderr, "%s: ", prompt)
		passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return "", err
		}
		fmt.Fprintln(os.Stderr)

		return string(passphrase), nil
	}
}
