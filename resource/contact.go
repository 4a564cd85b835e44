package resource

type Contact struct {
	Base
	FirstName   string
	LastName    string
	Email       string
	CodePrimary string
	PhoneWork   string
	PhoneHome   string
	PhoneMobile string
	Status      ContactStatus
}

func (*Contact) ResourceType() string { return "Contact" }

func (c *Contact) StatusName() string { return string(c.Status) }

func registerContacts(r *Registry) {
	define[Contact](r, "Contact", "ContactID").
		text("FirstName", func(c *Contact, v string) { c.FirstName = v }).
		text("LastName", func(c *Contact, v string) { c.LastName = v }).
		text("Email", func(c *Contact, v string) { c.Email = v }).
		text("CodePrimary", func(c *Contact, v string) { c.CodePrimary = v }).
		text("PhoneWork", func(c *Contact, v string) { c.PhoneWork = v }).
		text("PhoneHome", func(c *Contact, v string) { c.PhoneHome = v }).
		text("PhoneMobile", func(c *Contact, v string) { c.PhoneMobile = v }).
		setter("Status", func(c *Contact, v string) error {
			c.Status = parseStatus(v, ContactStatusActive, ContactStatusInactive)
			return nil
		})
	r.collection("Contacts", "Contact")
}
