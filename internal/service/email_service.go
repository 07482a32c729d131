package service

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/smileref/smileref/internal/config"
	"github.com/smileref/smileref/internal/constants"
)

// defaultEmailSendTimeout 未配置 email.timeout_seconds 时的兜底超时
const defaultEmailSendTimeout = 10 * time.Second

// EmailService 邮件发送服务
type EmailService struct {
	cfg *config.EmailConfig
}

// NewEmailService 创建邮件服务
func NewEmailService(cfg *config.EmailConfig) *EmailService {
	return &EmailService{cfg: cfg}
}

// emailTemplateInput 所有外发邮件统一走同一套模板
type emailTemplateInput struct {
	Subject      string
	Heading      string
	Paragraphs   []string
	CallToAction string
}

// SendOTPEmail 发送一次性验证码邮件
func (s *EmailService) SendOTPEmail(toEmail, code, purpose string) error {
	input := emailTemplateInput{
		Subject: "Your verification code",
		Heading: "Your one-time code",
		Paragraphs: []string{
			fmt.Sprintf("Your verification code is: %s", code),
			"This code expires in 10 minutes. Do not share it with anyone.",
		},
	}
	if strings.EqualFold(strings.TrimSpace(purpose), constants.OTPPurposeReset) {
		input.Subject = "Reset your password"
		input.Heading = "Password reset code"
	}
	return s.sendTextEmail(toEmail, input)
}

// SendMagicLinkEmail 发送到店引导落地页链接
func (s *EmailService) SendMagicLinkEmail(toEmail, firstName, landingURL string) error {
	greeting := "Welcome!"
	if strings.TrimSpace(firstName) != "" {
		greeting = fmt.Sprintf("Welcome, %s!", strings.TrimSpace(firstName))
	}
	input := emailTemplateInput{
		Subject: "Your personal referral link",
		Heading: greeting,
		Paragraphs: []string{
			"Thanks for visiting us. Open the link below to see your personal referral page.",
		},
		CallToAction: landingURL,
	}
	return s.sendTextEmail(toEmail, input)
}

// SendReferralNotifyEmail 通知推荐人有新的推荐注册
// 内容不包含任何金额承诺
func (s *EmailService) SendReferralNotifyEmail(toEmail, referredName string) error {
	name := strings.TrimSpace(referredName)
	if name == "" {
		name = "A friend"
	}
	input := emailTemplateInput{
		Subject: "Someone used your referral link",
		Heading: "Great news!",
		Paragraphs: []string{
			fmt.Sprintf("%s just signed up using your referral link.", name),
			"We will let you know once their first visit is complete.",
		},
	}
	return s.sendTextEmail(toEmail, input)
}

func (s *EmailService) sendTextEmail(toEmail string, input emailTemplateInput) error {
	if s.cfg == nil || !s.cfg.Enabled {
		return ErrEmailServiceDisabled
	}
	if s.cfg.Host == "" || s.cfg.Port == 0 || s.cfg.From == "" {
		return ErrEmailServiceNotConfigured
	}
	if _, err := mail.ParseAddress(toEmail); err != nil {
		return ErrInvalidEmail
	}

	from := buildFromAddress(s.cfg.From, s.cfg.FromName)
	msg := buildEmailMessage(from, toEmail, input.Subject, renderEmailBody(input))

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" || s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	timeout := s.sendTimeout()
	if s.cfg.UseSSL {
		return normalizeEmailSendError(sendMailWithSSL(addr, auth, s.cfg.Host, s.cfg.From, []string{toEmail}, []byte(msg), timeout))
	}
	if s.cfg.UseTLS {
		return normalizeEmailSendError(sendMailWithStartTLS(addr, auth, s.cfg.Host, s.cfg.From, []string{toEmail}, []byte(msg), timeout))
	}
	return normalizeEmailSendError(sendMailPlain(addr, auth, s.cfg.Host, s.cfg.From, []string{toEmail}, []byte(msg), timeout))
}

// sendTimeout 单次投递的整体超时，覆盖拨号、握手与数据传输
func (s *EmailService) sendTimeout() time.Duration {
	if s.cfg != nil && s.cfg.TimeoutSeconds > 0 {
		return time.Duration(s.cfg.TimeoutSeconds) * time.Second
	}
	return defaultEmailSendTimeout
}

func renderEmailBody(input emailTemplateInput) string {
	var buf bytes.Buffer
	if input.Heading != "" {
		buf.WriteString(input.Heading)
		buf.WriteString("\n\n")
	}
	for i, p := range input.Paragraphs {
		if i > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p)
	}
	if input.CallToAction != "" {
		buf.WriteString("\n\n")
		buf.WriteString(input.CallToAction)
	}
	return buf.String()
}

func buildFromAddress(from, name string) string {
	if strings.TrimSpace(name) == "" {
		return from
	}
	encoded := mime.QEncoding.Encode("UTF-8", name)
	return (&mail.Address{Name: encoded, Address: from}).String()
}

func buildEmailMessage(from, to, subject, body string) string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("From: %s\r\n", from))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", to))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", subject)))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	return buf.String()
}

func sendMailWithSSL(addr string, auth smtp.Auth, host, from string, to []string, msg []byte, timeout time.Duration) error {
	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: timeout}, "tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer client.Close()

	if auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
	}

	return sendSMTPData(client, from, to, msg)
}

func sendMailWithStartTLS(addr string, auth smtp.Auth, host, from string, to []string, msg []byte, timeout time.Duration) error {
	client, err := dialSMTP(addr, host, timeout)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return err
	}

	if auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
	}

	return sendSMTPData(client, from, to, msg)
}

func sendMailPlain(addr string, auth smtp.Auth, host, from string, to []string, msg []byte, timeout time.Duration) error {
	client, err := dialSMTP(addr, host, timeout)
	if err != nil {
		return err
	}
	defer client.Close()

	if auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
	}

	return sendSMTPData(client, from, to, msg)
}

// dialSMTP 带超时拨号，连接期限覆盖问候语读取与后续整个会话
func dialSMTP(addr, host string, timeout time.Duration) (*smtp.Client, error) {
	conn, err := (&net.Dialer{Timeout: timeout}).Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(timeout))

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return client, nil
}

func sendSMTPData(client *smtp.Client, from string, to []string, msg []byte) error {
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func normalizeEmailSendError(err error) error {
	if err == nil {
		return nil
	}
	if isEmailRecipientRejected(err) {
		return ErrEmailRecipientRejected
	}
	return err
}

func isEmailRecipientRejected(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	if message == "" {
		return false
	}
	keywords := []string{
		"no such recipient",
		"no such user",
		"recipient not found",
		"recipient address rejected",
		"invalid recipient",
		"user unknown",
		"mailbox unavailable",
		"mailbox not found",
	}
	for _, keyword := range keywords {
		if strings.Contains(message, keyword) {
			return true
		}
	}
	return false
}
