package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opd-ai/securemsg"
	"github.com/opd-ai/securemsg/contacts"
)

// app drives the interactive console session.
type app struct {
	in      *bufio.Scanner
	outMu   sync.Mutex
	out     io.Writer
	m       *securemsg.Messenger
	book    *contacts.Book
	port    int
	timeout time.Duration
}

func newApp(in io.Reader, out io.Writer, m *securemsg.Messenger, book *contacts.Book, port int) *app {
	scanner := bufio.NewScanner(in)
	// Public key documents are pasted on a single line.
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	return &app{in: scanner, out: out, m: m, book: book, port: port, timeout: 15 * time.Second}
}

// printf is shared by the menu loop and the message callback goroutine.
func (a *app) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

// prompt prints label and reads one trimmed line. ok is false at end of input.
func (a *app) prompt(label string) (string, bool) {
	a.printf("%s", label)
	if !a.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(a.in.Text()), true
}

// run returns when the user exits, input ends, or the account is deleted.
func (a *app) run() error {
	a.printf("=== Secure Messaging App ===\n")

	ok, err := a.authenticate()
	if err != nil || !ok {
		return err
	}

	cancel := a.m.OnMessageReceived(a.showMessage)
	defer cancel()

	if err := a.m.StartListening(a.port); err != nil {
		return fmt.Errorf("start listener: %w", err)
	}
	a.printf("Listening on %s\n", a.m.ListenAddr())
	defer a.m.StopListening()

	return a.mainMenu()
}

// authenticate logs in or creates an account. It reports false when the
// session should end without error.
func (a *app) authenticate() (bool, error) {
	if !a.m.AccountExists() {
		a.printf("No account found. Create a new account.\n")
		pass, ok := a.prompt("Enter a new master password: ")
		if !ok {
			return false, nil
		}
		if pass == "" {
			a.printf("The master password must not be empty.\n")
			return false, nil
		}
		if err := a.m.CreateAccount(pass); err != nil {
			return false, fmt.Errorf("create account: %w", err)
		}
		if err := a.m.Login(pass); err != nil {
			return false, fmt.Errorf("unlock new account: %w", err)
		}
		return a.askSenderName()
	}

	a.printf("Account detected. Please login.\n")
	for {
		pass, ok := a.prompt("Enter your master password: ")
		if !ok {
			return false, nil
		}
		err := a.m.Login(pass)
		if err == nil {
			return a.askSenderName()
		}
		if errors.Is(err, securemsg.ErrTooManyAttempts) {
			a.printf("Too many failed attempts. Exiting...\n")
			return false, nil
		}
		if !errors.Is(err, securemsg.ErrInvalidCredentials) {
			return false, fmt.Errorf("login: %w", err)
		}

		a.printf("Invalid master password.\n")
		option, ok := a.prompt("Options: 1. Try again  2. Delete account\n")
		if !ok {
			return false, nil
		}
		if option == "2" && a.confirm("Are you sure you want to delete your account? This will remove your keys. (yes/no): ") {
			if err := a.m.DeleteAccount(); err != nil {
				return false, fmt.Errorf("delete account: %w", err)
			}
			a.printf("Account deleted. Please restart the application to create a new account.\n")
			return false, nil
		}
	}
}

func (a *app) askSenderName() (bool, error) {
	name, ok := a.prompt("Enter your sender name: ")
	if !ok {
		return false, nil
	}
	if name != "" {
		a.m.SetSenderName(name)
	}
	return true, nil
}

func (a *app) confirm(label string) bool {
	answer, ok := a.prompt(label)
	return ok && strings.EqualFold(answer, "yes")
}

func (a *app) mainMenu() error {
	for {
		a.printf("\nMain Menu Options:\n1. Send a message\n2. View my public key\n3. Manage contacts\n4. Delete account\n5. Exit\n")
		option, ok := a.prompt("Select an option: ")
		if !ok {
			return nil
		}

		switch option {
		case "1":
			a.sendFlow()
		case "2":
			key, err := a.m.GetPublicKey()
			if err != nil {
				return fmt.Errorf("read public key: %w", err)
			}
			a.printf("\n=== Your Public Key ===\n%s\n========================\n", key)
		case "3":
			if !a.contactsMenu() {
				return nil
			}
		case "4":
			if a.confirm("Are you sure you want to delete your account? (yes/no): ") {
				if err := a.m.DeleteAccount(); err != nil {
					return fmt.Errorf("delete account: %w", err)
				}
				a.printf("Account deleted. Exiting application...\n")
				return nil
			}
		case "5":
			return nil
		default:
			a.printf("Invalid option. Try again.\n")
		}
	}
}

func (a *app) sendFlow() {
	a.printf("\nSend Message Options:\n1. Enter recipient details manually\n2. Select from saved contacts\n")
	option, ok := a.prompt("Select an option: ")
	if !ok {
		return
	}

	var recipient contacts.Contact
	switch option {
	case "1":
		if recipient, ok = a.readRecipient(); !ok {
			return
		}
	case "2":
		if recipient, ok = a.pickContact(); !ok {
			return
		}
	default:
		a.printf("Invalid option.\n")
		return
	}

	content, ok := a.prompt("Enter your message: ")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	err := a.m.SendMessage(ctx, content, recipient.PublicKey, recipient.IPAddress, recipient.Port)
	switch {
	case err == nil:
		a.printf("Message sent.\n")
	case errors.Is(err, securemsg.ErrPayloadTooLarge):
		a.printf("Message is too long to encrypt; shorten it and try again.\n")
	case errors.Is(err, securemsg.ErrInvalidKeyEncoding):
		a.printf("The recipient's public key is not valid.\n")
	default:
		a.printf("Failed to send message: %v\n", err)
	}
}

func (a *app) readRecipient() (contacts.Contact, bool) {
	var c contacts.Contact
	var ok bool
	if c.IPAddress, ok = a.prompt("Enter recipient's IP address: "); !ok {
		return c, false
	}
	if c.Port, ok = a.readPort("Enter recipient's port (default 5000): "); !ok {
		return c, false
	}
	if c.PublicKey, ok = a.prompt("Paste the recipient's public key (XML format): \n"); !ok {
		return c, false
	}
	return c, true
}

func (a *app) readPort(label string) (int, bool) {
	raw, ok := a.prompt(label)
	if !ok {
		return 0, false
	}
	if raw == "" {
		return securemsg.DefaultPort, true
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port < 1 || port > 65535 {
		a.printf("Invalid port %q.\n", raw)
		return 0, false
	}
	return port, true
}

func (a *app) pickContact() (contacts.Contact, bool) {
	list := a.book.List()
	if len(list) == 0 {
		a.printf("No contacts saved.\n")
		return contacts.Contact{}, false
	}
	a.printf("Select a contact:\n")
	for i, c := range list {
		a.printf("%d. %s (IP: %s, Port: %d)\n", i+1, c.Name, c.IPAddress, c.Port)
	}
	choice, ok := a.prompt("Enter contact number: ")
	if !ok {
		return contacts.Contact{}, false
	}
	index, err := strconv.Atoi(choice)
	if err != nil || index < 1 || index > len(list) {
		a.printf("Invalid contact selection.\n")
		return contacts.Contact{}, false
	}
	return list[index-1], true
}

// contactsMenu reports false when input ended.
func (a *app) contactsMenu() bool {
	for {
		a.printf("\nContacts Management:\n1. View contacts\n2. Add/Edit contact\n3. Delete contact\n4. Back to main menu\n")
		option, ok := a.prompt("Select an option: ")
		if !ok {
			return false
		}

		switch option {
		case "1":
			list := a.book.List()
			if len(list) == 0 {
				a.printf("No contacts saved.\n")
				continue
			}
			a.printf("Saved Contacts:\n")
			for _, c := range list {
				a.printf("Name: %s, IP: %s, Port: %d\n", c.Name, c.IPAddress, c.Port)
			}
		case "2":
			name, ok := a.prompt("Enter contact name: ")
			if !ok {
				return false
			}
			c, ok := a.readRecipient()
			if !ok {
				continue
			}
			c.Name = name
			if _, err := a.book.Upsert(c); err != nil {
				a.printf("Contact not saved: %v\n", err)
				continue
			}
			a.printf("Contact saved.\n")
		case "3":
			name, ok := a.prompt("Enter contact name to delete: ")
			if !ok {
				return false
			}
			if err := a.book.Delete(name); err != nil && !errors.Is(err, contacts.ErrNotFound) {
				a.printf("Contact not deleted: %v\n", err)
				continue
			}
			a.printf("Contact deleted if it existed.\n")
		case "4":
			return true
		default:
			a.printf("Invalid option.\n")
		}
	}
}

func (a *app) showMessage(msg securemsg.Message) {
	a.printf("\n=== New Message Received ===\nFrom: %s\nTime: %s\nMessage: %s\n============================\n",
		msg.Sender, msg.Timestamp.Local().Format(time.DateTime), msg.Content)
}
