package sender

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/learnhub/internal/lib/smtp"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Connect() (smtp.Client, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(smtp.Client), args.Error(1)
}

func (m *MockTransport) Sender() string {
	args := m.Called()
	return args.String(0)
}

type MockSMTPClient struct {
	mock.Mock
}

func (m *MockSMTPClient) Mail(from string) error {
	args := m.Called(from)
	return args.Error(0)
}

func (m *MockSMTPClient) Rcpt(to string) error {
	args := m.Called(to)
	return args.Error(0)
}

func (m *MockSMTPClient) Data() (io.WriteCloser, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.WriteCloser), args.Error(1)
}

func (m *MockSMTPClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSMTPClient) Quit() error {
	args := m.Called()
	return args.Error(0)
}

type MockSMTPWriter struct {
	mock.Mock
	written []byte
}

func (m *MockSMTPWriter) Write(p []byte) (n int, err error) {
	m.written = append(m.written, p...)
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *MockSMTPWriter) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func expectDelivery(tr *MockTransport, to string) *MockSMTPWriter {
	mockClient := new(MockSMTPClient)
	mockWriter := new(MockSMTPWriter)

	tr.On("Sender").Return("robot@learnhub.test")
	tr.On("Connect").Return(mockClient, nil).Once()
	mockClient.On("Mail", "robot@learnhub.test").Return(nil).Once()
	mockClient.On("Rcpt", to).Return(nil).Once()
	mockClient.On("Data").Return(mockWriter, nil).Once()
	mockWriter.On("Write", mock.AnythingOfType("[]uint8")).Return(100, nil).Once()
	mockWriter.On("Close").Return(nil).Once()
	mockClient.On("Quit").Return(nil).Once()
	mockClient.On("Close").Return(nil).Once()
	return mockWriter
}

func TestService_HandleTrialExpiring(t *testing.T) {
	tests := []struct {
		name          string
		body          []byte
		setupMocks    func(*MockTransport) *MockSMTPWriter
		expectedError error
		errorMessage  string
		wantInBody    string
	}{
		{
			name: "success",
			body: []byte(`{"type":"trial.expiring","account_uid":"u1","email":"t@example.com","ends_at":"2025-03-08T09:00:00Z","days_remaining":1}`),
			setupMocks: func(tr *MockTransport) *MockSMTPWriter {
				return expectDelivery(tr, "t@example.com")
			},
			wantInBody: "08.03.2025",
		},
		{
			name:          "invalid JSON",
			body:          []byte(`invalid json`),
			setupMocks:    func(_ *MockTransport) *MockSMTPWriter { return nil },
			expectedError: ErrMalformed,
		},
		{
			name:          "wrong type",
			body:          []byte(`{"type":"subscription.extended","email":"t@example.com"}`),
			setupMocks:    func(_ *MockTransport) *MockSMTPWriter { return nil },
			expectedError: ErrMalformed,
		},
		{
			name:          "empty email",
			body:          []byte(`{"type":"trial.expiring"}`),
			setupMocks:    func(_ *MockTransport) *MockSMTPWriter { return nil },
			expectedError: ErrMalformed,
		},
		{
			name: "SMTP connection error",
			body: []byte(`{"type":"trial.expiring","email":"t@example.com"}`),
			setupMocks: func(tr *MockTransport) *MockSMTPWriter {
				tr.On("Sender").Return("robot@learnhub.test")
				tr.On("Connect").Return(nil, errors.New("connection error")).Once()
				return nil
			},
			errorMessage: "connection error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := new(MockTransport)
			writer := tt.setupMocks(transport)
			service := New(transport, newNoopLogger())

			err := service.HandleTrialExpiring(tt.body)

			switch {
			case tt.expectedError != nil:
				assert.ErrorIs(t, err, tt.expectedError)
			case tt.errorMessage != "":
				assert.ErrorContains(t, err, tt.errorMessage)
				assert.NotErrorIs(t, err, ErrMalformed)
			default:
				assert.NoError(t, err)
				assert.Contains(t, string(writer.written), tt.wantInBody)
				assert.Contains(t, string(writer.written), "To: t@example.com")
			}
			transport.AssertExpectations(t)
		})
	}
}

func TestService_HandleSubscriptionExtended(t *testing.T) {
	transport := new(MockTransport)
	writer := expectDelivery(transport, "t@example.com")
	service := New(transport, newNoopLogger())

	err := service.HandleSubscriptionExtended([]byte(
		`{"type":"subscription.extended","email":"t@example.com","ends_at":"2025-04-07T09:00:00Z"}`))

	assert.NoError(t, err)
	assert.Contains(t, string(writer.written), "07.04.2025")
	assert.Contains(t, string(writer.written), "Subject: Подписка на LearnHub продлена")
	transport.AssertExpectations(t)
}

func TestService_HandleSubscriptionExtended_RcptError(t *testing.T) {
	transport := new(MockTransport)
	client := new(MockSMTPClient)
	transport.On("Sender").Return("robot@learnhub.test")
	transport.On("Connect").Return(client, nil).Once()
	client.On("Mail", "robot@learnhub.test").Return(nil).Once()
	client.On("Rcpt", "t@example.com").Return(errors.New("mailbox unavailable")).Once()
	client.On("Close").Return(nil).Once()

	err := New(transport, newNoopLogger()).HandleSubscriptionExtended(
		[]byte(`{"type":"subscription.extended","email":"t@example.com"}`))

	assert.ErrorContains(t, err, "mailbox unavailable")
	client.AssertExpectations(t)
}
